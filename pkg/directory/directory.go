// Package directory provides an embedded directory service fixture: an
// in-memory directory information tree organised in partitions, loaded
// from LDIF and queried by DN.
package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"

	"scribble/pkg/fixture"
	"scribble/pkg/logging"
	"scribble/pkg/tempfs"
)

// ImportFileName is the file LDIF data is written to inside the folder
// before it is loaded.
const ImportFileName = "scribble_import.ldif"

// Partition is a subtree of the directory rooted at Suffix.
type Partition struct {
	ID     string
	Suffix string
	dn     *ldap.DN
}

// Directory is the directory service fixture.
type Directory struct {
	fixture.Base

	folder        *tempfs.TemporaryFolder
	accessControl bool
	anonymous     bool

	mu         sync.RWMutex
	partitions []*Partition
	entries    map[string]*ldap.Entry
	pending    [][]byte
}

// NewDirectory declares a directory living in folder. Access control is
// disabled and anonymous access enabled by default. A directory without
// partitions is valid.
func NewDirectory(folder *tempfs.TemporaryFolder) *Directory {
	d := &Directory{
		folder:    folder,
		anonymous: true,
		entries:   map[string]*ldap.Entry{},
	}
	d.Init("Directory", folder)
	d.Declare("accessControl", fixture.Optional)
	d.Declare("anonymousAccess", fixture.Optional)
	return d
}

// SetAccessControlEnabled turns access control on or off. With access
// control only entries carrying a userPassword can bind.
func (d *Directory) SetAccessControlEnabled(enabled bool) error {
	if err := d.Configure("accessControl"); err != nil {
		return err
	}
	d.accessControl = enabled
	return nil
}

// SetAnonymousAccessEnabled allows or rejects anonymous binds.
func (d *Directory) SetAnonymousAccessEnabled(enabled bool) error {
	if err := d.Configure("anonymousAccess"); err != nil {
		return err
	}
	d.anonymous = enabled
	return nil
}

func (d *Directory) AccessControlEnabled() bool   { return d.accessControl }
func (d *Directory) AnonymousAccessEnabled() bool { return d.anonymous }

// AddPartition adds a partition. It may be called before and after the
// directory is active; an active directory creates the context entry
// right away.
func (d *Directory) AddPartition(id, suffix string) error {
	dn, err := ldap.ParseDN(suffix)
	if err != nil {
		return fmt.Errorf("invalid partition suffix %q: %w", suffix, err)
	}
	if len(dn.RDNs) == 0 {
		return fmt.Errorf("partition %s needs a non-empty suffix", id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() == fixture.StateDestroyed {
		return d.RequireActive("AddPartition")
	}
	for _, p := range d.partitions {
		if p.ID == id {
			return fmt.Errorf("partition %s already exists", id)
		}
		if normalize(p.dn) == normalize(dn) {
			return fmt.Errorf("suffix %s already served by partition %s", suffix, p.ID)
		}
	}
	p := &Partition{ID: id, Suffix: suffix, dn: dn}
	d.partitions = append(d.partitions, p)
	if d.IsActive() {
		d.createContextEntry(p)
	}
	return nil
}

// Partitions returns the configured partitions in the order they were
// added.
func (d *Directory) Partitions() []Partition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Partition, 0, len(d.partitions))
	for _, p := range d.partitions {
		out = append(out, *p)
	}
	return out
}

// ImportLDIF loads LDIF data. While the directory is active the data is
// written to ImportFileName in the folder and loaded immediately;
// otherwise it is kept and imported on setup.
func (d *Directory) ImportLDIF(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading LDIF: %w", err)
	}
	switch d.State() {
	case fixture.StateActive:
		return d.importData(data)
	case fixture.StateDestroyed:
		return d.RequireActive("ImportLDIF")
	default:
		if err := d.Configure("ldif"); err != nil {
			return err
		}
		d.pending = append(d.pending, data)
		return nil
	}
}

func (d *Directory) Before(ctx context.Context) error {
	if d.folder == nil {
		return tempfs.ErrNoFolder
	}
	d.mu.Lock()
	for _, p := range d.partitions {
		d.createContextEntry(p)
	}
	d.mu.Unlock()
	d.Defer("entries", func(ctx context.Context) error {
		d.mu.Lock()
		d.entries = map[string]*ldap.Entry{}
		d.mu.Unlock()
		return nil
	})

	for _, data := range d.pending {
		if err := d.importData(data); err != nil {
			return err
		}
	}
	d.pending = nil
	logging.Info("Directory", "started with %d partitions (access control %t, anonymous access %t)",
		len(d.partitions), d.accessControl, d.anonymous)
	return nil
}

func (d *Directory) After(ctx context.Context) error {
	return nil
}

func (d *Directory) BeforeClass(ctx context.Context) error {
	return d.Before(ctx)
}

func (d *Directory) AfterClass(ctx context.Context) error {
	return d.After(ctx)
}

func (d *Directory) importData(data []byte) error {
	file := filepath.Join(d.folder.Root(), ImportFileName)
	if err := os.WriteFile(file, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", file, err)
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	records, err := ParseLDIF(f)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rec := range records {
		if err := d.addEntry(rec.DN, rec.Attributes); err != nil {
			return err
		}
	}
	logging.Debug("Directory", "imported %d entries from %s", len(records), file)
	return nil
}

// createContextEntry must be called with d.mu held.
func (d *Directory) createContextEntry(p *Partition) {
	key := normalize(p.dn)
	if _, ok := d.entries[key]; ok {
		return
	}
	first := p.dn.RDNs[0].Attributes[0]
	attrs := map[string][]string{
		first.Type:    {first.Value},
		"objectClass": {"top", objectClassFor(first.Type)},
	}
	d.entries[key] = ldap.NewEntry(p.Suffix, attrs)
}

// addEntry must be called with d.mu held.
func (d *Directory) addEntry(dnStr string, attrs map[string][]string) error {
	dn, err := ldap.ParseDN(dnStr)
	if err != nil {
		return ldap.NewError(ldap.LDAPResultInvalidDNSyntax, fmt.Errorf("invalid DN %q: %w", dnStr, err))
	}
	if d.partitionFor(dn) == nil {
		return ldap.NewError(ldap.LDAPResultNoSuchObject, fmt.Errorf("no partition for %s", dnStr))
	}
	key := normalize(dn)
	if _, exists := d.entries[key]; exists {
		return ldap.NewError(ldap.LDAPResultEntryAlreadyExists, fmt.Errorf("entry %s exists", dnStr))
	}
	d.entries[key] = ldap.NewEntry(dnStr, attrs)
	return nil
}

func (d *Directory) partitionFor(dn *ldap.DN) *Partition {
	for _, p := range d.partitions {
		if within(dn, p.dn) {
			return p
		}
	}
	return nil
}

// Lookup returns the entry named dn.
func (d *Directory) Lookup(dnStr string) (*ldap.Entry, error) {
	if err := d.RequireActive("Lookup"); err != nil {
		return nil, err
	}
	dn, err := ldap.ParseDN(dnStr)
	if err != nil {
		return nil, ldap.NewError(ldap.LDAPResultInvalidDNSyntax, err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.entries[normalize(dn)]
	if !ok {
		return nil, ldap.NewError(ldap.LDAPResultNoSuchObject, fmt.Errorf("no entry %s", dnStr))
	}
	return entry, nil
}

// Search returns the entries in the subtree of baseDN whose attribute attr
// has value (case-insensitive). An empty attr matches every entry.
func (d *Directory) Search(baseDN, attr, value string) ([]*ldap.Entry, error) {
	if err := d.RequireActive("Search"); err != nil {
		return nil, err
	}
	base, err := ldap.ParseDN(baseDN)
	if err != nil {
		return nil, ldap.NewError(ldap.LDAPResultInvalidDNSyntax, err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.entries[normalize(base)]; !ok {
		return nil, ldap.NewError(ldap.LDAPResultNoSuchObject, fmt.Errorf("no entry %s", baseDN))
	}

	var result []*ldap.Entry
	for _, entry := range d.entries {
		dn, err := ldap.ParseDN(entry.DN)
		if err != nil {
			continue
		}
		if !within(dn, base) {
			continue
		}
		if attr == "" || hasValue(entry, attr, value) {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DN < result[j].DN })
	return result, nil
}

// Bind checks the credentials of dn. An empty dn is an anonymous bind.
func (d *Directory) Bind(dnStr, password string) error {
	if err := d.RequireActive("Bind"); err != nil {
		return err
	}
	if dnStr == "" {
		if !d.anonymous {
			return ldap.NewError(ldap.LDAPResultInappropriateAuthentication, errors.New("anonymous access is disabled"))
		}
		return nil
	}

	entry, err := d.Lookup(dnStr)
	if err != nil {
		return ldap.NewError(ldap.LDAPResultInvalidCredentials, err)
	}
	stored := entry.GetAttributeValues("userPassword")
	if len(stored) == 0 {
		if d.accessControl {
			return ldap.NewError(ldap.LDAPResultInsufficientAccessRights, fmt.Errorf("%s has no password", dnStr))
		}
		return nil
	}
	for _, pw := range stored {
		if pw == password {
			return nil
		}
	}
	return ldap.NewError(ldap.LDAPResultInvalidCredentials, fmt.Errorf("wrong password for %s", dnStr))
}

// EntryCount returns the number of entries including context entries.
func (d *Directory) EntryCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// WriteLDIF writes all entries as LDIF, sorted by DN.
func (d *Directory) WriteLDIF(w io.Writer) error {
	d.mu.RLock()
	entries := make([]*ldap.Entry, 0, len(d.entries))
	for _, e := range d.entries {
		entries = append(entries, e)
	}
	d.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].DN < entries[j].DN })

	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "dn: %s\n", e.DN)
		for _, a := range e.Attributes {
			for _, v := range a.Values {
				fmt.Fprintf(&buf, "%s: %s\n", a.Name, v)
			}
		}
		buf.WriteString("\n")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func hasValue(entry *ldap.Entry, attr, value string) bool {
	for _, a := range entry.Attributes {
		if !strings.EqualFold(a.Name, attr) {
			continue
		}
		for _, v := range a.Values {
			if value == "*" || strings.EqualFold(v, value) {
				return true
			}
		}
	}
	return false
}

// normalize renders dn in a canonical lower-case form used as map key.
func normalize(dn *ldap.DN) string {
	parts := make([]string, 0, len(dn.RDNs))
	for _, rdn := range dn.RDNs {
		attrs := make([]string, 0, len(rdn.Attributes))
		for _, a := range rdn.Attributes {
			attrs = append(attrs, strings.ToLower(a.Type)+"="+strings.ToLower(a.Value))
		}
		sort.Strings(attrs)
		parts = append(parts, strings.Join(attrs, "+"))
	}
	return strings.Join(parts, ",")
}

// within reports whether dn equals base or lies below it. Attribute values
// compare case-insensitively.
func within(dn, base *ldap.DN) bool {
	d, b := normalize(dn), normalize(base)
	return d == b || strings.HasSuffix(d, ","+b)
}

func objectClassFor(attrType string) string {
	switch strings.ToLower(attrType) {
	case "dc":
		return "domain"
	case "o":
		return "organization"
	case "ou":
		return "organizationalUnit"
	default:
		return "extensibleObject"
	}
}
