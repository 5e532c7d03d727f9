// Package ingress models the tunnel's ingress configuration.
//
// The upstream stores ingress as a loosely typed JSON list whose last entry is
// a hostname-less catch-all. Here each entry is either a *CatchAll or a
// *HostRoute. Keys this package does not understand are kept verbatim so a
// read-modify-write cycle never drops settings someone configured elsewhere.
package ingress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultCatchAllService is used when the upstream list has no catch-all.
const DefaultCatchAllService = "http_status:404"

var (
	ErrDuplicateHost = errors.New("ingress rule for hostname already exists")
	ErrRuleNotFound  = errors.New("ingress rule not found")
)

// Rule is one ingress entry: *CatchAll or *HostRoute.
type Rule interface {
	isRule()
}

// CatchAll handles traffic no other rule matched. It must stay last.
type CatchAll struct {
	Service string

	extra map[string]json.RawMessage
}

// HostRoute maps a hostname (and optional path) to an origin service.
type HostRoute struct {
	Hostname  string
	Path      string
	Service   string
	Websocket bool

	extra  map[string]json.RawMessage
	origin map[string]json.RawMessage
}

func (*CatchAll) isRule()  {}
func (*HostRoute) isRule() {}

// Config is the tunnel configuration document.
type Config struct {
	Rules []Rule

	extra map[string]json.RawMessage
}

// Parse decodes a tunnel configuration document.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode tunnel config: %w", err)
	}
	var raw []map[string]json.RawMessage
	if v, ok := doc["ingress"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &raw); err != nil {
			return fmt.Errorf("decode ingress list: %w", err)
		}
	}
	delete(doc, "ingress")

	rules := make([]Rule, 0, len(raw))
	for i, fields := range raw {
		rule, err := decodeRule(fields)
		if err != nil {
			return fmt.Errorf("decode ingress rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	c.Rules = rules
	c.extra = doc
	return nil
}

func (c *Config) MarshalJSON() ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(c.extra)+1)
	for k, v := range c.extra {
		doc[k] = v
	}
	rules := make([]map[string]json.RawMessage, 0, len(c.Rules))
	for _, r := range c.Rules {
		fields, err := encodeRule(r)
		if err != nil {
			return nil, err
		}
		rules = append(rules, fields)
	}
	list, err := json.Marshal(rules)
	if err != nil {
		return nil, err
	}
	doc["ingress"] = list
	return json.Marshal(doc)
}

func decodeRule(fields map[string]json.RawMessage) (Rule, error) {
	var hostname, path, service string
	if err := stringField(fields, "hostname", &hostname); err != nil {
		return nil, err
	}
	if err := stringField(fields, "path", &path); err != nil {
		return nil, err
	}
	if err := stringField(fields, "service", &service); err != nil {
		return nil, err
	}

	if hostname == "" && path == "" {
		delete(fields, "hostname")
		delete(fields, "path")
		delete(fields, "service")
		return &CatchAll{Service: service, extra: fields}, nil
	}

	r := &HostRoute{Hostname: hostname, Path: path, Service: service}
	if v, ok := fields["originRequest"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &r.origin); err != nil {
			return nil, fmt.Errorf("originRequest: %w", err)
		}
		if ws, ok := r.origin["websocket"]; ok {
			if err := json.Unmarshal(ws, &r.Websocket); err != nil {
				return nil, fmt.Errorf("originRequest.websocket: %w", err)
			}
			delete(r.origin, "websocket")
		}
	}
	delete(fields, "hostname")
	delete(fields, "path")
	delete(fields, "service")
	delete(fields, "originRequest")
	r.extra = fields
	return r, nil
}

func encodeRule(rule Rule) (map[string]json.RawMessage, error) {
	switch r := rule.(type) {
	case *CatchAll:
		fields := copyRaw(r.extra)
		if err := putField(fields, "service", r.Service); err != nil {
			return nil, err
		}
		return fields, nil
	case *HostRoute:
		fields := copyRaw(r.extra)
		if err := putField(fields, "hostname", r.Hostname); err != nil {
			return nil, err
		}
		if r.Path != "" {
			if err := putField(fields, "path", r.Path); err != nil {
				return nil, err
			}
		}
		if err := putField(fields, "service", r.Service); err != nil {
			return nil, err
		}
		origin := copyRaw(r.origin)
		if r.Websocket {
			origin["websocket"] = json.RawMessage("true")
		}
		if len(origin) > 0 {
			if err := putField(fields, "originRequest", origin); err != nil {
				return nil, err
			}
		}
		return fields, nil
	}
	return nil, fmt.Errorf("unknown ingress rule type %T", rule)
}

// Hosts returns copies of every hostname rule in order.
func (c *Config) Hosts() []HostRoute {
	var hosts []HostRoute
	for _, r := range c.Rules {
		if h, ok := r.(*HostRoute); ok && h.Hostname != "" {
			hosts = append(hosts, *h)
		}
	}
	return hosts
}

// Find returns a copy of the first rule for hostname.
func (c *Config) Find(hostname string) (HostRoute, bool) {
	if h := c.find(hostname); h != nil {
		return *h, true
	}
	return HostRoute{}, false
}

func (c *Config) find(hostname string) *HostRoute {
	for _, r := range c.Rules {
		if h, ok := r.(*HostRoute); ok && strings.EqualFold(h.Hostname, hostname) {
			return h
		}
	}
	return nil
}

// Insert adds route immediately before the catch-all.
func (c *Config) Insert(route HostRoute) error {
	if route.Hostname == "" {
		return fmt.Errorf("ingress rule needs a hostname")
	}
	if c.find(route.Hostname) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateHost, route.Hostname)
	}
	c.splice(func(body []Rule) []Rule {
		r := route
		return append(body, &r)
	})
	return nil
}

// Update applies fn to the rule for hostname in place.
func (c *Config) Update(hostname string, fn func(*HostRoute)) error {
	h := c.find(hostname)
	if h == nil {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, hostname)
	}
	fn(h)
	return nil
}

// Remove deletes every rule whose hostname is in hostnames and returns the
// hostnames that were actually present.
func (c *Config) Remove(hostnames ...string) []string {
	drop := make(map[string]bool, len(hostnames))
	for _, h := range hostnames {
		drop[strings.ToLower(h)] = true
	}
	var removed []string
	seen := make(map[string]bool)
	c.splice(func(body []Rule) []Rule {
		kept := body[:0]
		for _, r := range body {
			if h, ok := r.(*HostRoute); ok && drop[strings.ToLower(h.Hostname)] {
				if !seen[strings.ToLower(h.Hostname)] {
					seen[strings.ToLower(h.Hostname)] = true
					removed = append(removed, h.Hostname)
				}
				continue
			}
			kept = append(kept, r)
		}
		return kept
	})
	return removed
}

// Normalize guarantees the list holds exactly one catch-all, in last place.
func (c *Config) Normalize() {
	c.splice(func(body []Rule) []Rule { return body })
}

// CatchAllLast reports whether the last rule is a catch-all.
func (c *Config) CatchAllLast() bool {
	if len(c.Rules) == 0 {
		return false
	}
	_, ok := c.Rules[len(c.Rules)-1].(*CatchAll)
	return ok
}

// splice pulls every catch-all out of the list, lets fn edit the remaining
// rules, and pushes a single catch-all back at the end. The last catch-all
// found wins; a missing one is replaced by the default.
func (c *Config) splice(fn func(body []Rule) []Rule) {
	var tail Rule = &CatchAll{Service: DefaultCatchAllService}
	body := make([]Rule, 0, len(c.Rules))
	for _, rule := range c.Rules {
		if ca, ok := rule.(*CatchAll); ok {
			tail = ca
			continue
		}
		body = append(body, rule)
	}
	body = fn(body)
	c.Rules = append(body, tail)
}

func stringField(fields map[string]json.RawMessage, key string, dst *string) error {
	v, ok := fields[key]
	if !ok || isNull(v) {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func putField(fields map[string]json.RawMessage, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	fields[key] = data
	return nil
}

func copyRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
