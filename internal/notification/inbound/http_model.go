package inbound

type SendNotificationRequest struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

type SendNotificationResponse struct {
	Response string `json:"response"`
}

func (SendNotificationResponse) Message() string { return "Notification sent" }
