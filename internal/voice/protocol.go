package voice

// Messages exchanged with bridge processes over the gateway websocket. Text
// frames carry JSON envelopes; binary frames carry audio as
// [1 byte id length][member id][encoded audio].
const (
	// bridge -> recorder
	msgVoiceState       = "voice_state"
	msgReply            = "reply"
	msgRecordingStarted = "recording_started"
	msgRecordingStopped = "recording_stopped"

	// recorder -> bridge
	msgCreateSession  = "create_session"
	msgCloseSession   = "close_session"
	msgStartRecording = "start_recording"
	msgStopRecording  = "stop_recording"
	msgDisconnect     = "disconnect"
	msgOpenThread     = "open_thread"
	msgPost           = "post"
	msgSetTitle       = "set_title"
)

type envelope struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	// voice_state
	Event *Event `json:"event,omitempty"`

	// replies and recording control
	ChannelID   string `json:"channel_id,omitempty"`
	ThreadID    string `json:"thread_id,omitempty"`
	RecordingID string `json:"recording_id,omitempty"`
	Error       string `json:"error,omitempty"`

	// sessions and presentation
	Name        string `json:"name,omitempty"`
	InitiatorID string `json:"initiator_id,omitempty"`
	Content     string `json:"content,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Attachment  string `json:"attachment,omitempty"`
}

// encodeAudioFrame builds a binary frame; used by bridges and tests.
func encodeAudioFrame(memberID string, audio []byte) []byte {
	frame := make([]byte, 0, 1+len(memberID)+len(audio))
	frame = append(frame, byte(len(memberID)))
	frame = append(frame, memberID...)
	return append(frame, audio...)
}

func decodeAudioFrame(frame []byte) (string, []byte, bool) {
	if len(frame) < 1 {
		return "", nil, false
	}
	n := int(frame[0])
	if n == 0 || len(frame) < 1+n {
		return "", nil, false
	}
	return string(frame[1 : 1+n]), frame[1+n:], true
}
