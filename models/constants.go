package models

// ✅ Default DynamoDB table names (overridable through config)
const (
	PIIRequestsTable       = "PIIRequests"
	PIIRequestGuardsTable  = "PIIRequestGuards"
	PIIAccessGrantsTable   = "PIIAccessGrants"
	NotificationQueueTable = "NotificationQueue"
	NotificationLogTable   = "NotificationLog"
	UserListsTable         = "UserLists"
	UserProfilesTable      = "Users"
	PreferencesTable       = "NotificationPreferences"
)

// ✅ Global secondary indexes
const (
	RequesterIndex = "requesterUsername-index"
	RequesteeIndex = "requesteeUsername-index"
	GranteeIndex   = "granteeUsername-index"

	QueueStatusIndex   = "status-index"   // NotificationQueue, PK status
	QueueUsernameIndex = "username-index" // NotificationQueue, PK username
	LogUsernameIndex   = "username-createdAtMs-index"
	LogDayIndex        = "logDay-createdAtMs-index" // PK yyyy-mm-dd
)

// ✅ Roles carried in the auth token
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
