package recipient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sensiblebit/cmsresolve/internal/certstore"
)

// Finder narrows a collection. Each method returns a new collection the
// caller must close; on error the returned collection, if any, is closed by
// the resolver as well.
type Finder interface {
	FindBySerialNumber(src *certstore.Collection, serial []byte) (*certstore.Collection, error)
	FindByIssuerName(src *certstore.Collection, issuer string) (*certstore.Collection, error)
	FindBySubjectKeyIdentifier(src *certstore.Collection, ski string) (*certstore.Collection, error)
}

// collectionFinder is the Finder backed by the certstore filter primitives.
type collectionFinder struct{}

func (collectionFinder) FindBySerialNumber(src *certstore.Collection, serial []byte) (*certstore.Collection, error) {
	return certstore.FindBySerialNumber(src, serial)
}

func (collectionFinder) FindByIssuerName(src *certstore.Collection, issuer string) (*certstore.Collection, error) {
	return certstore.FindByIssuerName(src, issuer)
}

func (collectionFinder) FindBySubjectKeyIdentifier(src *certstore.Collection, ski string) (*certstore.Collection, error) {
	return certstore.FindBySubjectKeyIdentifier(src, ski)
}

// Resolver maps identifiers to certificates.
type Resolver struct {
	finder Finder
}

// NewResolver returns a Resolver using finder, or the certstore filter
// primitives when finder is nil.
func NewResolver(finder Finder) *Resolver {
	if finder == nil {
		finder = collectionFinder{}
	}
	return &Resolver{finder: finder}
}

var defaultResolver = NewResolver(nil)

// Resolve finds the certificate named by id in coll using the default
// Resolver. See Resolver.Resolve.
func Resolve(coll *certstore.Collection, id Identifier) (*certstore.Certificate, error) {
	return defaultResolver.Resolve(coll, id)
}

// Resolve finds the certificate named by id in coll and returns an owned
// clone of it, which the caller must close. It returns nil, nil when nothing
// matches.
//
// When several certificates match, the first in collection order is returned
// and the rest are ignored without error: duplicate certificates carrying
// the same identifier are treated as interchangeable. This hides identifier
// collisions from the caller.
//
// Every intermediate collection is closed before Resolve returns, on every
// path. Resolve panics if id is nil or not one of this package's identifier
// types.
func (r *Resolver) Resolve(coll *certstore.Collection, id Identifier) (*certstore.Certificate, error) {
	switch id := id.(type) {
	case IssuerAndSerial:
		bySerial, err := r.finder.FindBySerialNumber(coll, id.SerialNumber)
		if err != nil {
			closeQuietly(bySerial)
			return nil, fmt.Errorf("filtering by serial number: %w", err)
		}
		defer closeQuietly(bySerial)
		if bySerial.Len() == 0 {
			return nil, nil
		}

		byIssuer, err := r.finder.FindByIssuerName(bySerial, id.IssuerName)
		if err != nil {
			closeQuietly(byIssuer)
			return nil, fmt.Errorf("filtering by issuer name: %w", err)
		}
		defer closeQuietly(byIssuer)
		return first(byIssuer, id), nil

	case SubjectKeyIdentifier:
		bySKI, err := r.finder.FindBySubjectKeyIdentifier(coll, id.SKI)
		if err != nil {
			closeQuietly(bySKI)
			return nil, fmt.Errorf("filtering by subject key identifier: %w", err)
		}
		defer closeQuietly(bySKI)
		return first(bySKI, id), nil

	default:
		panic(fmt.Sprintf("recipient: unsupported identifier type %T", id))
	}
}

// first clones the first member of matches, or returns nil when empty.
func first(matches *certstore.Collection, id Identifier) *certstore.Certificate {
	switch n := matches.Len(); n {
	case 0:
		return nil
	case 1:
	default:
		slog.Debug("multiple certificates match identifier, using the first", "id", id.String(), "count", n)
	}
	return matches.At(0).Clone()
}

func closeQuietly(c *certstore.Collection) {
	_ = c.Close()
}

// StoreRef names a store to search.
type StoreRef struct {
	Name     string
	Location certstore.Location
	// Flags are added to ReadOnly when the store is opened.
	Flags certstore.OpenFlags
}

// String renders the reference as Location\Name.
func (r StoreRef) String() string {
	return r.Location.String() + `\` + r.Name
}

// StoreOpener opens certificate stores. *certstore.Opener implements it.
type StoreOpener interface {
	Open(ctx context.Context, name string, location certstore.Location, flags certstore.OpenFlags) (*certstore.Store, error)
}

// FindInStores opens each referenced store read-only in turn and resolves id
// against it, returning the first match as an owned clone together with the
// store it came from. Stores that do not exist are skipped. Every store and
// collection opened here is closed before FindInStores returns.
func (r *Resolver) FindInStores(ctx context.Context, opener StoreOpener, refs []StoreRef, id Identifier) (*certstore.Certificate, StoreRef, error) {
	mustBeKnown(id)
	for _, ref := range refs {
		cert, err := r.findInStore(ctx, opener, ref, id)
		if err != nil {
			return nil, StoreRef{}, err
		}
		if cert != nil {
			slog.Debug("resolved identifier in store", "id", id.String(), "store", ref.String())
			return cert, ref, nil
		}
	}
	return nil, StoreRef{}, nil
}

func (r *Resolver) findInStore(ctx context.Context, opener StoreOpener, ref StoreRef, id Identifier) (*certstore.Certificate, error) {
	store, err := opener.Open(ctx, ref.Name, ref.Location, certstore.ReadOnly|ref.Flags)
	if err != nil {
		if errors.Is(err, certstore.ErrStoreNotFound) {
			slog.Debug("skipping missing store", "store", ref.String())
			return nil, nil
		}
		return nil, fmt.Errorf("opening store %s: %w", ref, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing store", "store", ref.String(), "error", err)
		}
	}()

	coll, err := store.Certificates(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading store %s: %w", ref, err)
	}
	defer closeQuietly(coll)

	return r.Resolve(coll, id)
}

// mustBeKnown panics unless id is one of this package's identifier types.
func mustBeKnown(id Identifier) {
	switch id.(type) {
	case IssuerAndSerial, SubjectKeyIdentifier:
	default:
		panic(fmt.Sprintf("recipient: unsupported identifier type %T", id))
	}
}
