package models

// ProfileContact holds the protected attributes of a profile.
type ProfileContact struct {
	Username      string   `dynamodbav:"username" json:"username"` // PK
	ContactEmail  string   `dynamodbav:"contactEmail,omitempty" json:"contactEmail,omitempty"`
	ContactNumber string   `dynamodbav:"contactNumber,omitempty" json:"contactNumber,omitempty"`
	LinkedInURL   string   `dynamodbav:"linkedinUrl,omitempty" json:"linkedinUrl,omitempty"`
	Location      string   `dynamodbav:"location,omitempty" json:"location,omitempty"`
	Workplace     string   `dynamodbav:"workplace,omitempty" json:"workplace,omitempty"`
	Photos        []string `dynamodbav:"photos,omitempty" json:"-"` // S3 object keys
}

// ContactView is a ProfileContact as seen by a particular viewer.
type ContactView struct {
	Username      string           `json:"username"`
	ContactEmail  string           `json:"contactEmail,omitempty"`
	ContactNumber string           `json:"contactNumber,omitempty"`
	LinkedInURL   string           `json:"linkedinUrl,omitempty"`
	Location      string           `json:"location,omitempty"`
	Workplace     string           `json:"workplace,omitempty"`
	PhotoURLs     []string         `json:"photoUrls,omitempty"`
	AccessTypes   []PIIRequestType `json:"accessTypes"`
	Masked        map[string]bool  `json:"masked"`
	PIIMasked     bool             `json:"piiMasked"`
}
