package domain

// NotificationType discriminates outbound widget notifications.
type NotificationType string

const (
	NotifyShowTyping      NotificationType = "showTypingIndicator"
	NotifyHideTyping      NotificationType = "hideTypingIndicator"
	NotifyBotMessage      NotificationType = "botMessage"
	NotifyBotError        NotificationType = "botError"
	NotifyActivityWarning NotificationType = "activityWarning"
	NotifyForceClose      NotificationType = "forceCloseChat"
	NotifyAudioResponse   NotificationType = "audioResponse"
)

// Notification is one message sent from the bridge to the host surface.
// Only the fields relevant to Type are set.
type Notification struct {
	Type         NotificationType `json:"type"`
	Text         string           `json:"text,omitempty"`
	Message      string           `json:"message,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	AudioData    string           `json:"audioData,omitempty"`
	OriginalText string           `json:"originalText,omitempty"`
}

func ShowTyping() Notification { return Notification{Type: NotifyShowTyping} }

func HideTyping() Notification { return Notification{Type: NotifyHideTyping} }

func BotMessage(text string) Notification {
	return Notification{Type: NotifyBotMessage, Text: text}
}

func BotError(text string) Notification {
	return Notification{Type: NotifyBotError, Text: text}
}

func ActivityWarning(message string) Notification {
	return Notification{Type: NotifyActivityWarning, Message: message}
}

func ForceClose(reason, message string) Notification {
	return Notification{Type: NotifyForceClose, Reason: reason, Message: message}
}

// AudioResponse carries generated speech for a reply. Text and OriginalText
// hold the reply as displayed, not the normalized text sent to synthesis.
func AudioResponse(text, audioData, originalText string) Notification {
	return Notification{Type: NotifyAudioResponse, Text: text, AudioData: audioData, OriginalText: originalText}
}
