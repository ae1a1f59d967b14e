package acshm

// Byte layout of producer records, little endian, 4 byte packing.
// Only a prefix of each producer record is described, the producer may
// allocate a larger region.

type Kind uint8

const (
	KindInt32 Kind = iota + 1
	KindFloat32
	KindWChar // 2 byte UTF-16 code unit
)

func (k Kind) Width() int {
	switch k {
	case KindInt32, KindFloat32:
		return 4
	case KindWChar:
		return 2
	}
	return 0
}

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindFloat32:
		return "float32"
	case KindWChar:
		return "wchar"
	}
	return "?"
}

type Field struct {
	Name   string
	Offset int
	Kind   Kind
	Count  int
}

func (f Field) Size() int { return f.Kind.Width() * f.Count }
func (f Field) End() int  { return f.Offset + f.Size() }

type Layout struct {
	Name   string
	Size   int
	Fields []Field
}

func (l *Layout) Field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Offsets of decoded physics fields.
const (
	offPhysPacketID  = 0
	offPhysGas       = 4
	offPhysBrake     = 8
	offPhysFuel      = 12
	offPhysGear      = 16
	offPhysEngineRPM = 20
	offPhysSteer     = 24
	offPhysSpeedKmh  = 28
	offPhysTC        = 204
	offPhysABS       = 252
	offPhysAirTemp   = 288
	offPhysRoadTemp  = 292
	offPhysClutch    = 364

	PhysicsSize = 580
)

// Offsets of decoded graphics fields.
const (
	offGrPacketID       = 0
	offGrStatus         = 4
	offGrSession        = 8
	offGrCurrentTimeStr = 12
	offGrLastTimeStr    = 42
	offGrBestTimeStr    = 72
	offGrSplitStr       = 102
	offGrCompletedLaps  = 132
	offGrPosition       = 136
	offGrICurrentTime   = 140
	offGrILastTime      = 144
	offGrIBestTime      = 148
	offGrSessionLeft    = 152
	offGrIsInPit        = 160
	offGrSectorIndex    = 164
	offGrLastSectorTime = 168
	offGrNumberOfLaps   = 172
	offGrTyreCompound   = 176
	offGrWindSpeed      = 288
	offGrWindDirection  = 292

	timeStrLen      = 15
	tyreCompoundLen = 33

	GraphicsSize = 296
)

func fields(specs ...Field) []Field {
	off := 0
	for i := range specs {
		f := &specs[i]
		if f.Count == 0 {
			f.Count = 1
		}
		if f.Kind != KindWChar && off%4 != 0 {
			off += 4 - off%4
		}
		f.Offset = off
		off = f.End()
	}
	return specs
}

func i32(name string) Field         { return Field{Name: name, Kind: KindInt32} }
func f32(name string) Field         { return Field{Name: name, Kind: KindFloat32} }
func f32s(name string, n int) Field { return Field{Name: name, Kind: KindFloat32, Count: n} }
func wstr(name string, n int) Field { return Field{Name: name, Kind: KindWChar, Count: n} }

// PhysicsLayout is the vehicle dynamics feed.
var PhysicsLayout = Layout{Name: "physics", Size: PhysicsSize, Fields: fields(
	i32("packetId"),
	f32("gas"),
	f32("brake"),
	f32("fuel"),
	i32("gear"),
	i32("engineRPM"),
	f32("steerAngle"),
	f32("speedKmh"),
	f32s("velocity", 3),
	f32s("accG", 3),
	f32s("wheelSlip", 4),
	f32s("wheelLoad", 4),
	f32s("wheelsPressure", 4),
	f32s("wheelAngularSpeed", 4),
	f32s("tyreWear", 4),
	f32s("tyreDirtyLevel", 4),
	f32s("tyreCoreTemperature", 4),
	f32s("camberRAD", 4),
	f32s("suspensionTravel", 4),
	f32("drs"),
	f32("tc"),
	f32("heading"),
	f32("pitch"),
	f32("roll"),
	f32("cgHeight"),
	f32s("carDamage", 5),
	i32("numberOfTyresOut"),
	i32("pitLimiterOn"),
	f32("abs"),
	f32("kersCharge"),
	f32("kersInput"),
	i32("autoShifterOn"),
	f32s("rideHeight", 2),
	f32("turboBoost"),
	f32("ballast"),
	f32("airDensity"),
	f32("airTemp"),
	f32("roadTemp"),
	f32s("localAngularVel", 3),
	f32("finalFF"),
	f32("performanceMeter"),
	i32("engineBrake"),
	i32("ersRecoveryLevel"),
	i32("ersPowerLevel"),
	i32("ersHeatCharging"),
	i32("ersIsCharging"),
	f32("kersCurrentKJ"),
	i32("drsAvailable"),
	i32("drsEnabled"),
	f32s("brakeTemp", 4),
	f32("clutch"),
	f32s("tyreTempI", 4),
	f32s("tyreTempM", 4),
	f32s("tyreTempO", 4),
	i32("isAIControlled"),
	f32s("tyreContactPoint", 12),
	f32s("tyreContactNormal", 12),
	f32s("tyreContactHeading", 12),
	f32("brakeBias"),
	f32s("localVelocity", 3),
)}

// GraphicsLayout is the session/environment feed.
var GraphicsLayout = Layout{Name: "graphics", Size: GraphicsSize, Fields: fields(
	i32("packetId"),
	i32("status"),
	i32("session"),
	wstr("currentTime", timeStrLen),
	wstr("lastTime", timeStrLen),
	wstr("bestTime", timeStrLen),
	wstr("split", timeStrLen),
	i32("completedLaps"),
	i32("position"),
	i32("iCurrentTime"),
	i32("iLastTime"),
	i32("iBestTime"),
	f32("sessionTimeLeft"),
	f32("distanceTraveled"),
	i32("isInPit"),
	i32("currentSectorIndex"),
	i32("lastSectorTime"),
	i32("numberOfLaps"),
	wstr("tyreCompound", tyreCompoundLen),
	f32("replayTimeMultiplier"),
	f32("normalizedCarPosition"),
	f32s("carCoordinates", 3),
	f32("penaltyTime"),
	i32("flag"),
	i32("idealLineOn"),
	i32("isInPitLane"),
	f32("surfaceGrip"),
	i32("mandatoryPitDone"),
	f32("windSpeed"),
	f32("windDirection"),
)}
