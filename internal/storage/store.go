// Package storage implements the stable-storage cache: an MRU cache of
// previously applied prefixes, persisted to a rate-limited text file
// and offered back as a Rule on later boots to reduce renumbering
// churn.
package storage

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jr42/homenet-pa/internal/pa"
)

// Write-token bucket and debounce tunables.
const (
	// WTokensMax caps the write-token bucket.
	WTokensMax = 10
	// WTokensDefault is the bucket's initial value.
	WTokensDefault = 10
	// DefaultSaveDelay is the debounce after a cache change before a
	// write is attempted.
	DefaultSaveDelay = 2 * time.Second
	// DefaultTokenDelay is the interval between token refills.
	DefaultTokenDelay = 30 * time.Second
)

type entry struct {
	rec    *linkRecord
	prefix netip.Prefix
}

type linkRecord struct {
	link        *pa.Link
	name        string
	maxPrefixes int
	// bound is false for a "private" record: one the store created on
	// the fly for a Link it has no configured name/limit for yet.
	bound bool
	// entries is this link's own MRU list, front = most recently touched.
	entries []*entry
}

// Config parametrizes a Store.
type Config struct {
	// MaxPrefixes is the global MRU cap across all links; zero means
	// unbounded.
	MaxPrefixes int
	Path        string
	SaveDelay   time.Duration
	TokenDelay  time.Duration
	Clock       pa.Clock
	Log         logr.Logger
}

// Store is a pa.User: it caches every applied prefix in memory and, when
// bound to a file, persists it with rate-limited writes.
type Store struct {
	mu sync.Mutex

	maxPrefixes int
	path        string
	saveDelay   time.Duration
	tokenDelay  time.Duration
	clock       pa.Clock
	log         logr.Logger

	byLink map[*pa.Link]*linkRecord
	byName map[string]*linkRecord
	// global is the cross-link MRU order, front = most recently touched.
	global []*entry

	tokens     int
	dirty      bool
	saveTimer  pa.Timer
	tokenTimer pa.Timer

	// saveGroup collapses an attemptSave racing the token refill against an
	// explicit Save into a single writeFile call; both callers see the one
	// write's result instead of serializing two identical snapshots.
	saveGroup singleflight.Group
}

var _ pa.User = (*Store)(nil)

// New builds a Store ready to receive pa.User callbacks. Call LinkAdd for
// every Link that should be named and persisted; unnamed links are still
// cached (in memory only) under a private record.
func New(cfg Config) *Store {
	s := &Store{
		maxPrefixes: cfg.MaxPrefixes,
		path:        cfg.Path,
		saveDelay:   cfg.SaveDelay,
		tokenDelay:  cfg.TokenDelay,
		clock:       cfg.Clock,
		log:         cfg.Log,
		byLink:      make(map[*pa.Link]*linkRecord),
		byName:      make(map[string]*linkRecord),
		tokens:      WTokensDefault,
	}
	if s.saveDelay == 0 {
		s.saveDelay = DefaultSaveDelay
	}
	if s.tokenDelay == 0 {
		s.tokenDelay = DefaultTokenDelay
	}
	if s.clock == nil {
		s.clock = pa.RealClock
	}
	if s.log.GetSink() == nil {
		s.log = logr.Discard()
	}
	s.armTokenRefill()
	return s
}

// LinkAdd binds name/maxPrefixes to link. Any prefixes already cached
// under a private record for this link (because it was Applied-to
// before being added here) are transferred and trimmed to maxPrefixes.
func (s *Store) LinkAdd(link *pa.Link, name string, maxPrefixes int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, haveByLink := s.byLink[link]
	named, haveByName := s.byName[name]

	switch {
	case haveByLink && haveByName && rec != named:
		s.mergeRecordsLocked(rec, named)
	case !haveByLink && haveByName:
		rec = named
		rec.link = link
	case !haveByLink:
		rec = &linkRecord{link: link}
	}
	s.byLink[link] = rec
	rec.name = name
	rec.maxPrefixes = maxPrefixes
	rec.bound = true
	s.byName[name] = rec
	s.trimLinkLocked(rec)
}

// mergeRecordsLocked folds from's entries (e.g. read from the storage
// file before link was ever added) into into's (e.g. cached live via
// Applied notifications), keeping into's as more recent and discarding
// duplicate prefixes. Shared *entry values are mutated in place so
// s.global's references stay valid.
func (s *Store) mergeRecordsLocked(into, from *linkRecord) {
	seen := make(map[netip.Prefix]bool, len(into.entries))
	for _, e := range into.entries {
		seen[e.prefix] = true
	}
	var dropped []*entry
	for _, e := range from.entries {
		if seen[e.prefix] {
			dropped = append(dropped, e)
			continue
		}
		e.rec = into
		into.entries = append(into.entries, e)
		seen[e.prefix] = true
	}
	from.entries = nil
	s.removeFromGlobalLocked(dropped)
}

// LinkRemove unbinds a link from the store; its cached prefixes remain
// in memory (as a private record) but stop being persisted under a name.
func (s *Store) LinkRemove(link *pa.Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byLink[link]
	if !ok {
		return
	}
	delete(s.byName, rec.name)
	rec.bound = false
	rec.name = ""
}

// OnAssigned implements pa.User; storage only cares about applied
// prefixes.
func (s *Store) OnAssigned(*pa.LDP) {}

// OnPublished implements pa.User.
func (s *Store) OnPublished(*pa.LDP) {}

// OnApplied caches the newly applied prefix under its link.
func (s *Store) OnApplied(ldp *pa.LDP) {
	if !ldp.Applied {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordForLocked(ldp.Link)
	s.touchLocked(rec, ldp.Prefix)
	s.markDirtyLocked()
}

func (s *Store) recordForLocked(link *pa.Link) *linkRecord {
	rec, ok := s.byLink[link]
	if !ok {
		rec = &linkRecord{link: link}
		s.byLink[link] = rec
	}
	return rec
}

// touchLocked inserts prefix at the front of rec's list and the global
// list (or moves it there if already present), then trims both to their
// caps, evicting from the tail.
func (s *Store) touchLocked(rec *linkRecord, prefix netip.Prefix) {
	for i, e := range rec.entries {
		if e.prefix == prefix {
			rec.entries = append(rec.entries[:i:i], rec.entries[i+1:]...)
			break
		}
	}
	for i, e := range s.global {
		if e.rec == rec && e.prefix == prefix {
			s.global = append(s.global[:i:i], s.global[i+1:]...)
			break
		}
	}
	e := &entry{rec: rec, prefix: prefix}
	rec.entries = append([]*entry{e}, rec.entries...)
	s.global = append([]*entry{e}, s.global...)

	s.trimLinkLocked(rec)
	s.trimGlobalLocked()
}

func (s *Store) trimLinkLocked(rec *linkRecord) {
	if rec.maxPrefixes <= 0 || len(rec.entries) <= rec.maxPrefixes {
		return
	}
	evicted := rec.entries[rec.maxPrefixes:]
	rec.entries = rec.entries[:rec.maxPrefixes]
	s.removeFromGlobalLocked(evicted)
}

func (s *Store) trimGlobalLocked() {
	if s.maxPrefixes <= 0 || len(s.global) <= s.maxPrefixes {
		return
	}
	evicted := s.global[s.maxPrefixes:]
	s.global = s.global[:s.maxPrefixes]
	for _, e := range evicted {
		for i, re := range e.rec.entries {
			if re == e {
				e.rec.entries = append(e.rec.entries[:i:i], e.rec.entries[i+1:]...)
				break
			}
		}
	}
}

func (s *Store) removeFromGlobalLocked(evicted []*entry) {
	if len(evicted) == 0 {
		return
	}
	dead := make(map[*entry]bool, len(evicted))
	for _, e := range evicted {
		dead[e] = true
	}
	kept := s.global[:0:0]
	for _, e := range s.global {
		if !dead[e] {
			kept = append(kept, e)
		}
	}
	s.global = kept
}

// Entries returns link's cached prefixes, newest first.
func (s *Store) Entries(link *pa.Link) []netip.Prefix {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byLink[link]
	if !ok {
		return nil
	}
	out := make([]netip.Prefix, len(rec.entries))
	for i, e := range rec.entries {
		out[i] = e.prefix
	}
	return out
}

func (s *Store) markDirtyLocked() {
	s.dirty = true
	if s.path == "" {
		return
	}
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = s.clock.AfterFunc(s.saveDelay, s.attemptSave)
}

func (s *Store) armTokenRefill() {
	s.tokenTimer = s.clock.AfterFunc(s.tokenDelay, s.refillToken)
}

func (s *Store) refillToken() {
	s.mu.Lock()
	if s.tokens < WTokensMax {
		s.tokens++
	}
	pending := s.dirty && s.path != ""
	s.mu.Unlock()
	s.armTokenRefill()
	if pending {
		s.attemptSave()
	}
}

// attemptSave consumes one write token and saves, unless none is
// available -- the dirty flag then stays set for the next token or save
// timer.
func (s *Store) attemptSave() {
	s.mu.Lock()
	if !s.dirty || s.path == "" {
		s.mu.Unlock()
		return
	}
	if s.tokens <= 0 {
		s.mu.Unlock()
		return
	}
	s.tokens--
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	writeID := uuid.NewString()
	if _, err := s.writeCoalesced(snapshot); err != nil {
		s.log.Error(err, "storage save failed", "write_id", writeID, "path", s.path)
		s.mu.Lock()
		s.tokens++ // refund; dirty stays set so a later attempt retries
		s.mu.Unlock()
		return
	}
	s.log.V(1).Info("storage saved", "write_id", writeID, "path", s.path, "entries", len(snapshot))
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
}

// writeCoalesced collapses concurrent attemptSave/Save calls that land on
// the same path into a single writeFile, since they'd otherwise write the
// same snapshot or one computed moments later under the same token.
func (s *Store) writeCoalesced(snapshot []fileEntry) (any, error) {
	v, err, _ := s.saveGroup.Do(s.path, func() (any, error) {
		return nil, writeFile(s.path, snapshot)
	})
	return v, err
}

// snapshotLocked returns every named entry in global MRU order, oldest
// first, so a subsequent load reproduces both the per-link and the
// cross-link ordering and a re-save is byte-identical.
func (s *Store) snapshotLocked() []fileEntry {
	out := make([]fileEntry, 0, len(s.global))
	for i := len(s.global) - 1; i >= 0; i-- {
		e := s.global[i]
		if e.rec.name == "" {
			continue
		}
		out = append(out, fileEntry{linkName: e.rec.name, prefix: e.prefix})
	}
	return out
}

// Load reads the storage file and merges its entries into the cache as
// if they had just been Applied-to, oldest lines first so the resulting
// MRU order places the last line as most recent; duplicate lines for
// one link coalesce into a single entry. Entries for not-yet-bound link
// names are held under a name-keyed private record until LinkAdd
// supplies the matching Link.
func (s *Store) Load() error {
	entries, perr := readFile(s.path)
	s.mu.Lock()
	for _, fe := range entries {
		rec, ok := s.byName[fe.linkName]
		if !ok {
			rec = &linkRecord{name: fe.linkName}
			s.byName[fe.linkName] = rec
		}
		s.touchLocked(rec, fe.prefix)
	}
	s.mu.Unlock()
	return perr
}

// Save forces an immediate write attempt, bypassing the save-delay
// debounce but still respecting the token bucket.
func (s *Store) Save() error {
	s.mu.Lock()
	if s.tokens <= 0 {
		s.mu.Unlock()
		return fmt.Errorf("storage: no write tokens available")
	}
	s.tokens--
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	writeID := uuid.NewString()
	if _, err := s.writeCoalesced(snapshot); err != nil {
		s.mu.Lock()
		s.tokens++
		s.mu.Unlock()
		return fmt.Errorf("storage: save %s: %w", writeID, err)
	}
	s.log.V(1).Info("storage saved", "write_id", writeID, "path", s.path, "entries", len(snapshot))
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}
