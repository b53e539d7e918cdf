package pages

import (
	"fmt"
	"sort"

	"supernova/api/internal/session"
)

// Navigator maps navigation labels to slugs and keeps the selection in the
// session.
type Navigator struct {
	key    string
	slugs  map[string]string
	labels []string
}

// NewNavigator builds a navigator over label -> slug. An empty key uses
// active_page.
func NewNavigator(mapping map[string]string, key string) *Navigator {
	if key == "" {
		key = session.KeyActivePage
	}
	n := &Navigator{key: key, slugs: make(map[string]string, len(mapping))}
	for label, slug := range mapping {
		n.slugs[label] = slug
		n.labels = append(n.labels, label)
	}
	sort.Strings(n.labels)
	return n
}

// Labels returns the labels in alphabetical order.
func (n *Navigator) Labels() []string {
	return append([]string(nil), n.labels...)
}

// Mapping returns a copy of label -> slug.
func (n *Navigator) Mapping() map[string]string {
	out := make(map[string]string, len(n.slugs))
	for label, slug := range n.slugs {
		out[label] = slug
	}
	return out
}

func (n *Navigator) Slug(label string) (string, bool) {
	slug, ok := n.slugs[label]
	return slug, ok
}

// Active returns the stored selection. An absent or unknown value resets to
// the first label and is written back.
func (n *Navigator) Active(sess *session.Session) string {
	current := sess.GetString(n.key, "")
	if _, ok := n.slugs[current]; ok {
		return current
	}
	if len(n.labels) == 0 {
		return ""
	}
	sess.Set(n.key, n.labels[0])
	return n.labels[0]
}

func (n *Navigator) Select(sess *session.Session, label string) error {
	if _, ok := n.slugs[label]; !ok {
		return fmt.Errorf("unknown page %q", label)
	}
	sess.Set(n.key, label)
	return nil
}
