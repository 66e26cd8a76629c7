package motor

// Message is a classified inbound frame. It is one of Feedback,
// PrivateFeedback, VersionInfo, DeviceInfo, ParamReadResponse, FaultReport
// or RawFrame.
type Message interface {
	isMessage()
}

// VersionInfo is a firmware version reply.
type VersionInfo struct {
	MotorID uint8
	Version string
}

// DeviceInfo is a get-device-id reply.
type DeviceInfo struct {
	MotorID  uint8
	DeviceID string
}

// FaultReport is a fault feedback reply.
type FaultReport struct {
	MotorID uint8
	FaultStatus
}

// RawFrame is a data frame without a structured decoding.
type RawFrame struct {
	Frame
}

func (Feedback) isMessage()          {}
func (PrivateFeedback) isMessage()   {}
func (VersionInfo) isMessage()       {}
func (DeviceInfo) isMessage()        {}
func (ParamReadResponse) isMessage() {}
func (FaultReport) isMessage()       {}
func (RawFrame) isMessage()          {}

// Classify decodes an inbound frame for a host using master as its address.
// Remote and other non-data frames are not decoded and report false.
//
// Standard frames are feedback only when addressed to master in MIT mode.
// Extended frames are dispatched on their command type.
func Classify(f Frame, master uint8) (Message, bool) {
	switch {
	case f.IsStandard():
		mode, addr := ParseStandardID(f.ID)
		if mode == ModeMIT && addr == master {
			return DecodeFeedback(f.Data), true
		}
		return RawFrame{f}, true

	case f.IsExtended():
		typ, aux, _ := ParseExtendedID(f.ID)
		switch typ {
		case TypeGetDeviceID:
			id, dev := DecodeDeviceID(aux, f.Data)
			return DeviceInfo{MotorID: id, DeviceID: dev}, true
		case TypeFeedback:
			if IsVersionReply(f.Data) {
				return VersionInfo{MotorID: uint8(aux), Version: DecodeVersion(f.Data)}, true
			}
			return DecodePrivateFeedback(aux, f.Data), true
		case TypeParamRead:
			return DecodeParamRead(aux, f.Data), true
		case TypeFaultFeedback:
			return FaultReport{MotorID: uint8(aux), FaultStatus: DecodeFaultReport(f.Data)}, true
		case TypeActiveReport:
			return DecodePrivateFeedback(aux, f.Data), true
		default:
			return RawFrame{f}, true
		}
	}
	return nil, false
}
