package entity

// Push is a notification addressed to one device registration token.
type Push struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}
