package domain

// StaffAccount is a staff member allowed to manage voter records.
type StaffAccount struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	PasswordHash   string `json:"password_hash"`
	Role           Role   `json:"role"`
	County         string `json:"county,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	// SessionToken is present iff the account is logged in.
	SessionToken string `json:"token,omitempty"`
}

// LoggedIn reports whether the account holds a live session.
func (a *StaffAccount) LoggedIn() bool { return a.SessionToken != "" }

// AccountView is the client-facing projection of a StaffAccount.
type AccountView struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Role           Role   `json:"role"`
	County         string `json:"county"`
	ProfilePicture string `json:"profile_picture"`
	Online         bool   `json:"online"`
}

// View strips credentials from the account.
func (a *StaffAccount) View() AccountView {
	return AccountView{
		ID:             a.ID,
		Username:       a.Username,
		Role:           a.Role,
		County:         a.County,
		ProfilePicture: a.ProfilePicture,
		Online:         a.LoggedIn(),
	}
}

// AccountStats summarises accounts and voters for the admin dashboard.
type AccountStats struct {
	Voters     int `json:"voters"`
	Confirmed  int `json:"confirmed"`
	Online     int `json:"online"`
	Superadmin int `json:"superadmin"`
	Admin      int `json:"admin"`
	Superuser  int `json:"superuser"`
	User       int `json:"user"`
}
