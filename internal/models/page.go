package models

// Page is a fetched web page before it is split into documents.
type Page struct {
	URL         string
	Title       string
	Content     string
	ContentType string
	Language    string
	Depth       int
}
