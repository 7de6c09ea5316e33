// Package scope builds the company and creator predicate applied to every
// read path.
package scope

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/tradeflow/internal/shared"
)

// Filter restricts rows to a company and, for staff callers, to their own rows.
type Filter struct {
	CompanyID int64
	CreatedBy *int64
}

// For derives the filter for an authenticated principal.
func For(p shared.Principal) (Filter, error) {
	if err := p.Validate(); err != nil {
		return Filter{}, err
	}
	f := Filter{CompanyID: p.CompanyID}
	if !p.Role.Elevated() {
		user := p.UserID
		f.CreatedBy = &user
	}
	return f, nil
}

// Allows reports whether a row owned by companyID and created by createdBy is
// visible through the filter.
func (f Filter) Allows(companyID, createdBy int64) bool {
	if f.CompanyID == 0 || companyID != f.CompanyID {
		return false
	}
	return f.CreatedBy == nil || *f.CreatedBy == createdBy
}

// Apply appends the filter's predicates for the table aliased as alias.
func (f Filter) Apply(alias string, c *Conditions) {
	c.Add(column(alias, "company_id")+" = ?", f.CompanyID)
	if f.CreatedBy != nil {
		c.Add(column(alias, "created_by")+" = ?", *f.CreatedBy)
	}
}

// CacheToken identifies the visible row set for cache keys.
func (f Filter) CacheToken() string {
	if f.CreatedBy == nil {
		return "all"
	}
	return fmt.Sprintf("u%d", *f.CreatedBy)
}

func column(alias, name string) string {
	if alias == "" {
		return name
	}
	return alias + "." + name
}

// Conditions accumulates AND-ed SQL predicates with positional arguments.
// Each "?" in a fragment is rewritten to the next $n placeholder.
type Conditions struct {
	parts []string
	args  []any
}

// NewConditions starts a predicate list already carrying the filter.
func NewConditions(f Filter, alias string) *Conditions {
	c := &Conditions{}
	f.Apply(alias, c)
	return c
}

// Add appends fragment with its arguments.
func (c *Conditions) Add(fragment string, args ...any) {
	var b strings.Builder
	next := 0
	for _, r := range fragment {
		if r == '?' && next < len(args) {
			c.args = append(c.args, args[next])
			fmt.Fprintf(&b, "$%d", len(c.args))
			next++
			continue
		}
		b.WriteRune(r)
	}
	c.parts = append(c.parts, b.String())
}

// Where renders the WHERE clause, or an empty string without predicates.
func (c *Conditions) Where() string {
	if len(c.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.parts, " AND ")
}

// Args returns the accumulated arguments.
func (c *Conditions) Args() []any {
	return c.args
}

// Placeholder reserves the next positional argument, for LIMIT/OFFSET clauses.
func (c *Conditions) Placeholder(arg any) string {
	c.args = append(c.args, arg)
	return fmt.Sprintf("$%d", len(c.args))
}
