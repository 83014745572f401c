// Package mappingtest provides entry mapping fixtures shared by tests.
package mappingtest

import (
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// Suffix is the DN under which fixture entries live.
const Suffix = "dc=example,dc=com"

// UsersDN is the static container of user entries.
const UsersDN = "ou=users," + Suffix

// Sources returns the physical sources of the fixture, all served by the
// connector named "mem":
//
//	users(id*, name, password, status)
//	emails(user_id*, email*)
func Sources() []*mapping.Source {
	return []*mapping.Source{
		{
			Name:      "users",
			Connector: "mem",
			Fields: []mapping.SourceField{
				{Name: "id", PrimaryKey: true},
				{Name: "name"},
				{Name: "password"},
				{Name: "status"},
			},
		},
		{
			Name:      "emails",
			Connector: "mem",
			Fields: []mapping.SourceField{
				{Name: "user_id", PrimaryKey: true},
				{Name: "email", PrimaryKey: true},
			},
		},
	}
}

// UsersOU is a static root mapping producing ou=users,dc=example,dc=com.
func UsersOU() *mapping.EntryMapping {
	return &mapping.EntryMapping{
		ID:            "users-ou",
		ParentDN:      Suffix,
		ObjectClasses: []string{"organizationalUnit"},
		Attributes: []*mapping.AttributeMapping{
			{Name: "ou", Expression: mapping.Constant("users"), RDN: true},
		},
	}
}

// User maps id=<users.id> entries joining users and emails on
// users.id = emails.user_id. emails is optional.
func User() *mapping.EntryMapping {
	users := mapping.NewSourceMapping("users", "users",
		&mapping.FieldMapping{Name: "id", Expression: mapping.Variable("id")},
		&mapping.FieldMapping{Name: "name", Expression: mapping.Variable("name")},
		&mapping.FieldMapping{Name: "password", Expression: mapping.Variable("userPassword")},
	)
	emails := mapping.NewSourceMapping("emails", "emails",
		&mapping.FieldMapping{Name: "email", Expression: mapping.Variable("email")},
	)
	emails.Required = false

	return &mapping.EntryMapping{
		ID:            "user",
		ParentID:      "users-ou",
		ObjectClasses: []string{"person"},
		Attributes: []*mapping.AttributeMapping{
			{Name: "id", Expression: mapping.Variable("users.id"), RDN: true},
			{Name: "name", Expression: mapping.Variable("users.name")},
			{Name: "email", Expression: mapping.Variable("emails.email")},
			{Name: "userPassword", Expression: mapping.Variable("users.password")},
			{Name: "cn", Expression: mapping.Script(`users.name + " #" + users.id`)},
		},
		Sources:       []*mapping.SourceMapping{users, emails},
		Relationships: []mapping.Relationship{mapping.NewRelationship("users.id", "emails.user_id")},
	}
}

// Mailbox maps mail=<email> entries below each user, linked to the parent
// user by the connecting relationship mailboxes.user_id = users.id.
func Mailbox() *mapping.EntryMapping {
	mailboxes := mapping.NewSourceMapping("mailboxes", "emails",
		&mapping.FieldMapping{Name: "email", Expression: mapping.Variable("mail")},
	)
	return &mapping.EntryMapping{
		ID:            "mailbox",
		ParentID:      "user",
		ObjectClasses: []string{"mailbox"},
		Attributes: []*mapping.AttributeMapping{
			{Name: "mail", Expression: mapping.Variable("mailboxes.email"), RDN: true},
			{Name: "owner", Expression: mapping.Variable("mailboxes.user_id")},
		},
		Sources:       []*mapping.SourceMapping{mailboxes},
		Relationships: []mapping.Relationship{mapping.NewRelationship("mailboxes.user_id", "users.id")},
	}
}

// Registry links UsersOU, User and Mailbox.
func Registry() *mapping.Registry {
	r, err := mapping.NewRegistry(Sources(), []*mapping.EntryMapping{UsersOU(), User(), Mailbox()})
	if err != nil {
		panic(err)
	}
	return r
}

// FlatRegistry holds User re-rooted directly under ou=users without the
// static container or the mailbox child.
func FlatRegistry() *mapping.Registry {
	user := User()
	user.ParentID = ""
	user.ParentDN = UsersDN
	r, err := mapping.NewRegistry(Sources(), []*mapping.EntryMapping{user})
	if err != nil {
		panic(err)
	}
	return r
}
