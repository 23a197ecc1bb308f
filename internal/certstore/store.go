package certstore

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/breml/rootcerts/embedded"
	"github.com/jmoiron/sqlx"
	"github.com/sensiblebit/cmsresolve"
	_ "modernc.org/sqlite"
)

// Location selects which set of stores a store name refers to.
type Location int

const (
	// CurrentUser stores live under the user's configuration directory.
	CurrentUser Location = iota + 1
	// LocalMachine stores are shared by every user of the host.
	LocalMachine
	// System holds the built-in, read-only stores. Only "Root" exists: the
	// Mozilla CA bundle compiled into the binary.
	System
)

// String returns the canonical location name.
func (l Location) String() string {
	switch l {
	case CurrentUser:
		return "CurrentUser"
	case LocalMachine:
		return "LocalMachine"
	case System:
		return "System"
	default:
		return fmt.Sprintf("Location(%d)", int(l))
	}
}

// ParseLocation parses a location name case-insensitively. "user" and
// "machine" are accepted as short forms; an empty name means CurrentUser.
func ParseLocation(s string) (Location, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "currentuser", "user", "":
		return CurrentUser, nil
	case "localmachine", "machine":
		return LocalMachine, nil
	case "system":
		return System, nil
	default:
		return 0, fmt.Errorf("unknown store location %q (use CurrentUser, LocalMachine, or System)", s)
	}
}

// OpenFlags control how a store is opened.
type OpenFlags uint8

const (
	// ReadOnly opens the store without write access. Writes fail with ErrReadOnly.
	ReadOnly OpenFlags = 1 << iota
	// IncludeArchived makes Certificates return archived entries too.
	IncludeArchived
	// OpenExistingOnly fails with ErrStoreNotFound instead of creating a
	// missing store.
	OpenExistingOnly
)

// SystemRootStore is the name of the built-in root store at the System location.
const SystemRootStore = "Root"

var (
	// ErrReadOnly is returned by writes to a store opened ReadOnly or to a
	// System store.
	ErrReadOnly = errors.New("certstore: store is read-only")
	// ErrStoreNotFound is returned when a store does not exist and may not
	// be created.
	ErrStoreNotFound = errors.New("certstore: store not found")
	// ErrStoreLocked is returned when another writer holds the store.
	ErrStoreLocked = errors.New("certstore: store is locked by another writer")
	// ErrCertificateNotFound is returned by Archive and Remove for an
	// unknown fingerprint.
	ErrCertificateNotFound = errors.New("certstore: certificate not found in store")
)

// Opener opens named stores below per-location directories.
type Opener struct {
	// UserDir holds CurrentUser stores.
	UserDir string
	// MachineDir holds LocalMachine stores.
	MachineDir string
	// Tracker counts the handles of every collection the opened stores
	// return. Nil disables counting.
	Tracker *Tracker
}

// DefaultOpener returns an Opener using the platform default directories:
// <user config dir>/cmsresolve/stores and a machine-wide directory
// (/etc/cmsresolve/stores, or %ProgramData%\cmsresolve\stores on Windows).
func DefaultOpener() (*Opener, error) {
	userConfig, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("locating user config directory: %w", err)
	}
	machine := "/etc/cmsresolve/stores"
	if runtime.GOOS == "windows" {
		machine = filepath.Join(os.Getenv("ProgramData"), "cmsresolve", "stores")
	}
	return &Opener{
		UserDir:    filepath.Join(userConfig, "cmsresolve", "stores"),
		MachineDir: machine,
	}, nil
}

// OpenStore opens a store with the default opener.
func OpenStore(ctx context.Context, name string, location Location, flags OpenFlags) (*Store, error) {
	o, err := DefaultOpener()
	if err != nil {
		return nil, err
	}
	return o.Open(ctx, name, location, flags)
}

// Store is an open certificate store. It must be closed.
type Store struct {
	name     string
	location Location
	flags    OpenFlags
	path     string
	db       *sqlx.DB
	lock     *fileLock
	tracker  *Tracker
	closed   bool
}

// Entry describes one certificate row in a store.
type Entry struct {
	Fingerprint          string    `db:"fingerprint" json:"fingerprint"`
	SerialNumber         string    `db:"serial_number" json:"serial_number"`
	Issuer               string    `db:"issuer" json:"issuer"`
	Subject              string    `db:"subject" json:"subject"`
	SubjectKeyIdentifier string    `db:"subject_key_identifier" json:"subject_key_identifier"`
	NotAfter             time.Time `db:"not_after" json:"not_after"`
	Archived             bool      `db:"archived" json:"archived"`
	AddedAt              time.Time `db:"added_at" json:"added_at"`
	DER                  []byte    `db:"der" json:"-"`
}

func validateStoreName(name string) error {
	if name == "" {
		return errors.New("store name is empty")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid store name %q", name)
	}
	return nil
}

func (o *Opener) dir(location Location) (string, error) {
	var dir string
	switch location {
	case CurrentUser:
		dir = o.UserDir
	case LocalMachine:
		dir = o.MachineDir
	default:
		return "", fmt.Errorf("unsupported store location %s", location)
	}
	if dir == "" {
		return "", fmt.Errorf("no directory configured for %s stores", location)
	}
	return dir, nil
}

// Open opens the named store. See OpenFlags for the recognized flags.
func (o *Opener) Open(ctx context.Context, name string, location Location, flags OpenFlags) (*Store, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	if location == System {
		return openSystemStore(name, flags, o.Tracker)
	}

	dir, err := o.dir(location)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, name+".db")
	readOnly := flags&ReadOnly != 0

	if readOnly || flags&OpenExistingOnly != 0 {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s\\%s", ErrStoreNotFound, location, name)
			}
			return nil, fmt.Errorf("checking store %s: %w", path, err)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
	}

	s := &Store{
		name:     name,
		location: location,
		flags:    flags,
		path:     path,
		tracker:  o.Tracker,
	}

	if !readOnly {
		lock, err := lockFile(path + ".lock")
		if err != nil {
			return nil, err
		}
		s.lock = lock
	}

	db, err := sqlx.Open("sqlite", storeDSN(path, readOnly))
	if err != nil {
		s.unlock()
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		s.unlock()
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	if !readOnly {
		if err := initStoreSchema(ctx, db); err != nil {
			_ = db.Close()
			s.unlock()
			return nil, fmt.Errorf("initializing store %s: %w", path, err)
		}
	}
	s.db = db

	slog.Debug("opened certificate store", "name", name, "location", location.String(), "read_only", readOnly)
	return s, nil
}

func storeDSN(path string, readOnly bool) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	if readOnly {
		q.Set("mode", "ro")
	}
	return "file:" + filepath.ToSlash(path) + "?" + q.Encode()
}

func initStoreSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS certificates (
			fingerprint             text PRIMARY KEY,
			serial_number           text NOT NULL,
			issuer                  text NOT NULL,
			subject                 text NOT NULL,
			subject_key_identifier  text NOT NULL,
			not_after               timestamp NOT NULL,
			archived                integer NOT NULL DEFAULT 0,
			added_at                timestamp NOT NULL,
			der                     blob NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating certificates table: %w", err)
	}
	for _, stmt := range []string{
		"CREATE INDEX IF NOT EXISTS idx_certificates_serial ON certificates (serial_number)",
		"CREATE INDEX IF NOT EXISTS idx_certificates_ski ON certificates (subject_key_identifier)",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}

var systemRoots = sync.OnceValues(func() ([]*x509.Certificate, error) {
	return cmsresolve.ParsePEMCertificates([]byte(embedded.MozillaCACertificatesPEM()))
})

func openSystemStore(name string, flags OpenFlags, tracker *Tracker) (*Store, error) {
	if !strings.EqualFold(name, SystemRootStore) {
		return nil, fmt.Errorf("%w: %s\\%s", ErrStoreNotFound, System, name)
	}
	return &Store{
		name:     SystemRootStore,
		location: System,
		flags:    flags | ReadOnly,
		tracker:  tracker,
	}, nil
}

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// Location returns the store location.
func (s *Store) Location() Location { return s.location }

// ReadOnly reports whether writes are refused.
func (s *Store) ReadOnly() bool { return s.flags&ReadOnly != 0 }

// Certificates loads the store's certificates into a new collection in
// insertion order. Archived entries are included only when the store was
// opened with IncludeArchived. The caller must close the result.
func (s *Store) Certificates(ctx context.Context) (*Collection, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.location == System {
		roots, err := systemRoots()
		if err != nil {
			return nil, fmt.Errorf("loading embedded root certificates: %w", err)
		}
		return CollectionOf(s.tracker, roots...), nil
	}
	query := "SELECT der FROM certificates WHERE archived = 0 ORDER BY rowid"
	if s.flags&IncludeArchived != 0 {
		query = "SELECT der FROM certificates ORDER BY rowid"
	}
	var ders [][]byte
	if err := s.db.SelectContext(ctx, &ders, query); err != nil {
		return nil, fmt.Errorf("reading certificates from %s: %w", s.name, err)
	}

	coll := NewCollection(s.tracker)
	for _, der := range ders {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			slog.Warn("skipping unparseable certificate in store", "store", s.name, "error", err)
			continue
		}
		_ = coll.Add(cert)
	}
	return coll, nil
}

// Entries lists the store's rows in insertion order. Archived rows are
// included only when the store was opened with IncludeArchived.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.location == System {
		roots, err := systemRoots()
		if err != nil {
			return nil, fmt.Errorf("loading embedded root certificates: %w", err)
		}
		entries := make([]Entry, 0, len(roots))
		for _, cert := range roots {
			entries = append(entries, newEntry(cert, time.Time{}))
		}
		return entries, nil
	}
	query := "SELECT * FROM certificates WHERE archived = 0 ORDER BY rowid"
	if s.flags&IncludeArchived != 0 {
		query = "SELECT * FROM certificates ORDER BY rowid"
	}
	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("listing certificates in %s: %w", s.name, err)
	}
	return entries, nil
}

func newEntry(cert *x509.Certificate, addedAt time.Time) Entry {
	return Entry{
		Fingerprint:          cmsresolve.CertFingerprint(cert),
		SerialNumber:         hex.EncodeToString(cmsresolve.SerialBytes(cert)),
		Issuer:               cmsresolve.IssuerName(cert),
		Subject:              cert.Subject.String(),
		SubjectKeyIdentifier: hex.EncodeToString(cmsresolve.SubjectKeyID(cert)),
		NotAfter:             cert.NotAfter.UTC(),
		AddedAt:              addedAt,
		DER:                  cert.Raw,
	}
}

func (s *Store) writable() error {
	if s.closed {
		return ErrClosed
	}
	if s.ReadOnly() {
		return ErrReadOnly
	}
	return nil
}

// Add inserts a certificate. It reports false when the certificate (by
// SHA-256 fingerprint) is already present.
func (s *Store) Add(ctx context.Context, cert *x509.Certificate) (bool, error) {
	if err := s.writable(); err != nil {
		return false, err
	}
	if cert == nil {
		return false, errors.New("certificate is nil")
	}
	res, err := s.db.NamedExecContext(ctx, `
		INSERT OR IGNORE INTO certificates (fingerprint, serial_number, issuer, subject, subject_key_identifier, not_after, archived, added_at, der)
		VALUES (:fingerprint, :serial_number, :issuer, :subject, :subject_key_identifier, :not_after, :archived, :added_at, :der)
	`, newEntry(cert, time.Now().UTC()))
	if err != nil {
		return false, fmt.Errorf("adding certificate to %s: %w", s.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("adding certificate to %s: %w", s.name, err)
	}
	return n > 0, nil
}

// Archive marks the certificate with the given SHA-256 fingerprint as
// archived. Archived certificates are hidden unless IncludeArchived is set.
func (s *Store) Archive(ctx context.Context, fingerprint string) error {
	return s.update(ctx, "UPDATE certificates SET archived = 1 WHERE fingerprint = ?", fingerprint)
}

// Remove deletes the certificate with the given SHA-256 fingerprint.
func (s *Store) Remove(ctx context.Context, fingerprint string) error {
	return s.update(ctx, "DELETE FROM certificates WHERE fingerprint = ?", fingerprint)
}

func (s *Store) update(ctx context.Context, query, fingerprint string) error {
	if err := s.writable(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, strings.ToLower(fingerprint))
	if err != nil {
		return fmt.Errorf("updating %s: %w", s.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating %s: %w", s.name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrCertificateNotFound, fingerprint)
	}
	return nil
}

// Close closes the database and releases the writer lock. Every later call
// on the store returns ErrClosed.
func (s *Store) Close() error {
	s.closed = true
	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	s.unlock()
	return err
}

func (s *Store) unlock() {
	if s.lock == nil {
		return
	}
	if err := s.lock.unlock(); err != nil {
		slog.Warn("releasing store lock", "store", s.name, "error", err)
	}
	s.lock = nil
}
