// internal/status/constants.go
package status

// Drive status block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per axis.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the axis health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the code of the last error (see ErrorCode).
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the axis has been in error.
const SlotSecondsInError = 2

// SlotReady is 1 while the control loop exchanges verified frames.
const SlotReady = 3

// SlotCommsOK mirrors the link gate.
const SlotCommsOK = 4

// SlotPosition holds the elevation in centidegrees as a signed 32-bit value,
// high word first (slots 5 and 6).
const SlotPosition = 5

// SlotVelocity holds the elevation rate in centidegrees per second.
const SlotVelocity = 7

// SlotCurrent holds the motor current in mA.
const SlotCurrent = 8

// SlotScanCount holds the completed sweeps or dwells of the active scan.
const SlotScanCount = 9

// Slot 10 is reserved.
const SlotReserved = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// MaxSecondsInError is where the seconds counter saturates.
const MaxSecondsInError = 65535

// ---- HEALTH CODES ----

// HealthUnknown represents the boot state before the first bring-up finished.
const HealthUnknown uint16 = 0

// HealthOK represents a ready axis.
const HealthOK uint16 = 1

// HealthError represents a failed bring-up or a recovery in progress.
const HealthError uint16 = 2

// HealthStale represents a running loop whose last frame was missed.
const HealthStale uint16 = 3

// HealthDisabled represents a stopped loop.
const HealthDisabled uint16 = 4
