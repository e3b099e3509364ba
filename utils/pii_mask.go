package utils

import (
	"strings"
	"unicode"
)

// LinkedInPrivate replaces a LinkedIn URL the viewer has no access to.
const LinkedInPrivate = "[🔒 Private - Request Access]"

// MaskEmail keeps the first character of the local part: john@x.com -> j***@x.com
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if local == "" {
		return "***@" + domain
	}
	r := []rune(local)
	return string(r[0]) + "***@" + domain
}

// MaskPhone keeps the last four digits: +1-555-123-4567 ext 9 -> ***-***-4567
func MaskPhone(phone string) string {
	if phone == "" {
		return phone
	}
	if i := strings.Index(phone, "ext"); i >= 0 {
		phone = phone[:i]
	}
	var digits []rune
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return "***"
	}
	return "***-***-" + string(digits[len(digits)-4:])
}

// MaskLocation drops the street-level components of an address.
func MaskLocation(location string) string {
	if location == "" {
		return location
	}
	parts := splitTrim(location)
	switch {
	case len(parts) == 3:
		return parts[2]
	case len(parts) >= 4:
		return strings.Join(parts[len(parts)-2:], ", ")
	case len(parts) == 2:
		return strings.Join(parts, ", ")
	}
	return location
}

// MaskWorkplace keeps only the company name.
func MaskWorkplace(workplace string) string {
	if workplace == "" {
		return workplace
	}
	return splitTrim(workplace)[0]
}

func MaskLinkedIn(url string) string {
	if url == "" {
		return url
	}
	return LinkedInPrivate
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
