package policy

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/ini.v1"

	platformstrings "casbot/pkg/platform/strings"
)

const (
	keyServerID    = "serverid"
	keyGrantRoles  = "grantroles"
	keyDeleteRoles = "deleteroles"
	keyAcademic    = "is_academic"
	keySetRealName = "setrealname"
)

var (
	requiredKeys = []string{keyGrantRoles, keyServerID}
	allowedKeys  = map[string]struct{}{
		keyServerID:    {},
		keyGrantRoles:  {},
		keyDeleteRoles: {},
		keyAcademic:    {},
		keySetRealName: {},
	}
)

// Load reads and validates the policy file at path.
func Load(path string) (*Set, *Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read server config: %w", err)
	}
	return Parse(data)
}

// Parse validates every section of an INI document. It stops at the first
// invalid section; the returned Report covers the sections seen so far.
func Parse(data []byte) (*Set, *Report, error) {
	report := &Report{}

	file, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, data)
	if err != nil {
		return nil, report, report.fail(Diagnostic{Kind: KindSyntax, Value: err.Error()})
	}

	var policies []Policy
	seen := make(map[int64]string)
	for _, section := range file.Sections() {
		if section.Name() == ini.DefaultSection {
			if keys := section.KeyStrings(); len(keys) > 0 {
				return nil, report, report.fail(Diagnostic{Section: section.Name(), Kind: KindOrphanKeys, Keys: keys})
			}
			continue
		}

		p, diag := parseSection(section)
		if diag != nil {
			return nil, report, report.fail(*diag)
		}
		if other, dup := seen[p.ServerID]; dup {
			return nil, report, report.fail(Diagnostic{
				Section: section.Name(),
				Kind:    KindDuplicateServer,
				Keys:    []string{other},
				Value:   strconv.FormatInt(p.ServerID, 10),
			})
		}
		seen[p.ServerID] = section.Name()
		policies = append(policies, p)
		report.Results = append(report.Results, SectionResult{Section: section.Name()})
	}

	return NewSet(policies...), report, nil
}

func parseSection(section *ini.Section) (Policy, *Diagnostic) {
	name := section.Name()
	missing := make(map[string]struct{}, len(requiredKeys))
	for _, k := range requiredKeys {
		missing[k] = struct{}{}
	}

	for _, key := range section.KeyStrings() {
		if _, ok := allowedKeys[key]; !ok {
			return Policy{}, &Diagnostic{Section: name, Kind: KindUnknownKey, Keys: []string{key}}
		}
		delete(missing, key)
	}
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Policy{}, &Diagnostic{Section: name, Kind: KindMissingKeys, Keys: keys}
	}

	serverKey := section.Key(keyServerID)
	serverID, err := serverKey.Int64()
	if err != nil {
		return Policy{}, invalid(name, keyServerID, serverKey.String())
	}

	p := Policy{
		Section:     name,
		ServerID:    serverID,
		GrantRoles:  parseRoles(section.Key(keyGrantRoles).String()),
		DeleteRoles: parseRoles(section.Key(keyDeleteRoles).String()),
	}
	if p.Academic, err = boolKey(section, keyAcademic); err != nil {
		return Policy{}, invalid(name, keyAcademic, section.Key(keyAcademic).String())
	}
	if p.SetRealName, err = boolKey(section, keySetRealName); err != nil {
		return Policy{}, invalid(name, keySetRealName, section.Key(keySetRealName).String())
	}
	return p, nil
}

// boolKey returns false for absent optional keys.
func boolKey(section *ini.Section, key string) (bool, error) {
	if !section.HasKey(key) {
		return false, nil
	}
	return section.Key(key).Bool()
}

func invalid(section, key, value string) *Diagnostic {
	return &Diagnostic{Section: section, Kind: KindInvalidValue, Keys: []string{key}, Value: value}
}

// parseRoles splits a comma separated list, dropping blanks and duplicates.
func parseRoles(raw string) Roles {
	return Roles(platformstrings.SplitList(raw))
}
