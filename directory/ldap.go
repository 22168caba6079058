// Package directory verifies credentials against the school directory
// service.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found in directory")
)

// Entry is what the directory knows about a verified account.
type Entry struct {
	DN        string
	Username  string
	FirstName string
	LastName  string
	Email     string
}

// Authenticator verifies a username/password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*Entry, error)
}

type LDAPConfig struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
	// UserFilter contains one %s for the escaped username.
	UserFilter string
	Timeout    time.Duration
}

type LDAP struct {
	cfg LDAPConfig
}

func NewLDAP(cfg LDAPConfig) *LDAP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &LDAP{cfg: cfg}
}

var searchAttributes = []string{"dn", "sAMAccountName", "uid", "givenName", "sn", "mail"}

// Authenticate binds with the service account, looks up the user DN and then
// binds as the user to check the password.
func (l *LDAP) Authenticate(ctx context.Context, username, password string) (*Entry, error) {
	username = strings.TrimSpace(username)
	// An empty password would be an unauthenticated bind, which most servers accept.
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	timeout := l.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	conn, err := ldap.DialURL(l.cfg.URL, ldap.DialWithDialer(&net.Dialer{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("ldap dial: %w", err)
	}
	defer conn.Close()
	conn.SetTimeout(timeout)

	if l.cfg.BindDN != "" {
		if err := conn.Bind(l.cfg.BindDN, l.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("ldap service bind: %w", err)
		}
	}

	req := ldap.NewSearchRequest(
		l.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		2, int(timeout.Seconds()), false,
		UserFilter(l.cfg.UserFilter, username),
		searchAttributes,
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("ldap search: %w", err)
	}
	if len(res.Entries) != 1 {
		return nil, ErrUserNotFound
	}
	e := res.Entries[0]

	if err := conn.Bind(e.DN, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("ldap user bind: %w", err)
	}

	return entryFrom(e, username), nil
}

// UserFilter fills the configured filter with the escaped username.
func UserFilter(filter, username string) string {
	return fmt.Sprintf(filter, ldap.EscapeFilter(username))
}

func entryFrom(e *ldap.Entry, username string) *Entry {
	login := e.GetAttributeValue("sAMAccountName")
	if login == "" {
		login = e.GetAttributeValue("uid")
	}
	if login == "" {
		login = username
	}
	return &Entry{
		DN:        e.DN,
		Username:  strings.ToLower(login),
		FirstName: e.GetAttributeValue("givenName"),
		LastName:  e.GetAttributeValue("sn"),
		Email:     e.GetAttributeValue("mail"),
	}
}
