package database

import "sophia/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.School{},
		&models.SchoolMembership{},
		&models.SchoolClass{},
		&models.Subject{},
		&models.Channel{},
		&models.Participant{},
		&models.Message{},
		&models.Attachment{},
		&models.MessageView{},
		&models.ConversationOwnership{},
		&models.Notification{},
		&models.AuditEntry{},
	}
}
