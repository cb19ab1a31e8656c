// internal/fieldbus/objects.go
package fieldbus

// Object dictionary addresses used by the elevation amplifier.
const (
	ObjRxAssign uint16 = 0x1C12
	ObjTxAssign uint16 = 0x1C13

	ObjRxMapBase uint16 = 0x1600
	ObjTxMapBase uint16 = 0x1A00

	ObjDriveStatus    uint16 = 0x1002
	ObjGuardTime      uint16 = 0x100C
	ObjLifetimeFactor uint16 = 0x100D
	ObjHeartbeat      uint16 = 0x1017
	ObjPeakCurrent    uint16 = 0x2110
	ObjContCurrent    uint16 = 0x2111
	ObjPeakTime       uint16 = 0x2112
	ObjLatchedFaults  uint16 = 0x2183
	ObjTemperature    uint16 = 0x2202
	ObjCommutation    uint16 = 0x2204
	ObjActualCurrent  uint16 = 0x221C
	ObjEncoderWrap    uint16 = 0x2220
	ObjCurrentCommand uint16 = 0x2340
	ObjCurrentLoop    uint16 = 0x2380
	ObjControlWord    uint16 = 0x6040
	ObjStatusWord     uint16 = 0x6041
	ObjPositionActual uint16 = 0x6064
	ObjVelocityActual uint16 = 0x6069
)

// MaxGroups is the number of PDO groups per direction the amplifier accepts.
const MaxGroups = 4

// Control word values (CiA 402).
const (
	ControlDisable uint16 = 0x0000
	ControlEnable  uint16 = 0x000F
	ControlReset   uint16 = 0x0080
)

// Mapping is one object mapped into a PDO group.
type Mapping struct {
	Index uint16
	Sub   uint8
	Bits  uint8
}

// Group is the ordered content of one PDO.
type Group []Mapping

// Layout lists the requested receive (host to amplifier) and transmit
// (amplifier to host) groups in assignment order.
type Layout struct {
	Rx []Group
	Tx []Group
}

// DefaultLayout puts the safety-relevant fields first and diagnostics last.
func DefaultLayout() Layout {
	return Layout{
		Rx: []Group{
			{
				{Index: ObjCurrentCommand, Bits: 16},
				{Index: ObjControlWord, Bits: 16},
			},
		},
		Tx: []Group{
			{
				{Index: ObjPositionActual, Bits: 32},
				{Index: ObjVelocityActual, Bits: 32},
			},
			{
				{Index: ObjControlWord, Bits: 16},
				{Index: ObjStatusWord, Bits: 16},
				{Index: ObjDriveStatus, Bits: 32},
			},
			{
				{Index: ObjActualCurrent, Bits: 16},
			},
			{
				{Index: ObjTemperature, Bits: 16},
				{Index: ObjCommutation, Bits: 16},
				{Index: ObjLatchedFaults, Bits: 32},
			},
		},
	}
}
