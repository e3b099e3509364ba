package worker

import (
	"sort"
	"strings"

	"l3v3l_server/models"
)

type template struct {
	Subject string
	Body    string
}

var templates = map[models.Trigger]template{
	models.TriggerNewMatch:          {"You have a new match", "Hi {username}, you matched with {match}. Say hello!"},
	models.TriggerMutualFavorite:    {"It's mutual", "Hi {username}, {match} favorited you back."},
	models.TriggerShortlistAdded:    {"You made a shortlist", "Hi {username}, someone added you to their shortlist."},
	models.TriggerFavorited:         {"Someone favorited you", "Hi {username}, {actor} added you to their favorites."},
	models.TriggerProfileView:       {"Someone viewed your profile", "Hi {username}, {actor} viewed your profile."},
	models.TriggerNewMessage:        {"New message", "Hi {username}, {actor} sent you a message."},
	models.TriggerUnreadMessages:    {"You have unread messages", "Hi {username}, you have {count} unread messages."},
	models.TriggerPIIRequest:        {"Contact details requested", "Hi {username}, {requester} asked to see your {requestType}. {message}"},
	models.TriggerPIIGranted:        {"Access granted", "Hi {username}, {requestee} shared their {requestType} with you."},
	models.TriggerPIIDenied:         {"Request declined", "Hi {username}, {requestee} declined to share their {requestType}."},
	models.TriggerPIIExpiring:       {"Access expiring soon", "Hi {username}, your access to {requestee}'s details expires soon."},
	models.TriggerSuspiciousLogin:   {"Suspicious sign-in", "Hi {username}, we noticed a sign-in from {location}. If this wasn't you, reset your password."},
	models.TriggerProfileIncomplete: {"Finish your profile", "Hi {username}, complete your profile to get better matches."},
	models.TriggerUploadPhotos:      {"Add some photos", "Hi {username}, profiles with photos get more matches."},
	models.TriggerWeeklyDigest:      {"Your weekly digest", "Hi {username}, here is what happened this week."},
	models.TriggerMonthlyDigest:     {"Your monthly digest", "Hi {username}, here is what happened this month."},
}

// Render fills the trigger's template with data. Unknown placeholders are
// left as-is; triggers without a template get a generic message.
func Render(username string, trigger models.Trigger, data map[string]string) (subject, body string) {
	t, ok := templates[trigger]
	if !ok {
		t = template{
			Subject: "Notification from L3V3L",
			Body:    "Hi {username}, you have a new " + strings.ReplaceAll(string(trigger), "_", " ") + " notification.",
		}
	}

	keys := make([]string, 0, len(data)+1)
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := []string{"{username}", username}
	for _, k := range keys {
		if k == "username" {
			continue
		}
		pairs = append(pairs, "{"+k+"}", data[k])
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), strings.TrimSpace(r.Replace(t.Body))
}
