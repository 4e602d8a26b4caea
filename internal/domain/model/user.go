package model

import "time"

// Defaults applied to a freshly created user record.
const (
	DefaultCredits      int64 = 200
	DefaultPlan               = "Free"
	DefaultStatus             = "Free"
	DefaultPlanExpiry         = "N/A"
	DefaultKeysRedeemed int64 = 0
)

// RegisteredAtLayout is the DD-MM-YYYY layout used for User.RegisteredAt.
const RegisteredAtLayout = "02-01-2006"

// User is the persisted account state of a single bot user.
type User struct {
	ID           int64
	Credits      int64
	Plan         string
	Status       string
	PlanExpiry   string
	KeysRedeemed int64
	RegisteredAt string
	CustomURLs   []string
	SerpKey      *string // nil when no key is assigned
}

// NewUser returns a user carrying every default, registered on the date of now.
func NewUser(id int64, now time.Time) User {
	return User{
		ID:           id,
		Credits:      DefaultCredits,
		Plan:         DefaultPlan,
		Status:       DefaultStatus,
		PlanExpiry:   DefaultPlanExpiry,
		KeysRedeemed: DefaultKeysRedeemed,
		RegisteredAt: now.Format(RegisteredAtLayout),
		CustomURLs:   []string{},
	}
}

// HasSerpKey reports whether a non-empty serp key is assigned.
func (u User) HasSerpKey() bool {
	return u.SerpKey != nil && *u.SerpKey != ""
}

// UserSummary is the reduced view returned when listing every user.
type UserSummary struct {
	ID         int64
	Plan       string
	CustomURLs []string
	SerpKey    *string
}

// UserUpdate is a partial update of the mutable user columns. Nil fields are
// left untouched. A SerpKey pointing at "" releases the key.
type UserUpdate struct {
	Credits      *int64
	Plan         *string
	Status       *string
	PlanExpiry   *string
	KeysRedeemed *int64
	CustomURLs   *[]string
	SerpKey      *string
}

// Redemption is a plan key grant applied to a user in one step: plan and
// status become Plan, the expiry is replaced, Credits are added and the
// redemption counter increments.
type Redemption struct {
	Plan    string
	Expiry  string
	Credits int64
}

// IsEmpty reports whether the update sets no field at all.
func (u UserUpdate) IsEmpty() bool {
	return u.Credits == nil &&
		u.Plan == nil &&
		u.Status == nil &&
		u.PlanExpiry == nil &&
		u.KeysRedeemed == nil &&
		u.CustomURLs == nil &&
		u.SerpKey == nil
}
