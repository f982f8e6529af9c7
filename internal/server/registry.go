package server

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ConnID identifies one live connection for its whole lifetime.
type ConnID string

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// Registry tracks live connections and the usernames they have claimed.
// Every read or write of the maps happens under mu, so a username check and
// the claim that follows it are a single step. Sends never happen under mu.
type Registry struct {
	mu          sync.RWMutex
	connections map[ConnID]Outbound
	claims      map[string]ConnID              // username -> owner
	held        map[ConnID]map[string]struct{} // owner -> usernames
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[ConnID]Outbound),
		claims:      make(map[string]ConnID),
		held:        make(map[ConnID]map[string]struct{}),
	}
}

// JoinResult is the outcome of TryClaimUsername.
type JoinResult struct {
	Admitted bool
	Username string
	// Reason is set when the claim was rejected.
	Reason error
	// NoticeErr is set when the rejection notice could not be queued.
	NoticeErr error
}

// Register inserts the send handle for id.
func (r *Registry) Register(id ConnID, out Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[id]; exists {
		return ErrDuplicateID
	}
	r.connections[id] = out
	return nil
}

// Deregister removes id and every username claimed under it. It reports
// whether anything was removed; a second call for the same id is a no-op.
func (r *Registry) Deregister(id ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deregisterLocked(id)
}

func (r *Registry) deregisterLocked(id ConnID) bool {
	_, registered := r.connections[id]
	delete(r.connections, id)

	names := r.held[id]
	for name := range names {
		delete(r.claims, name)
	}
	delete(r.held, id)
	return registered || len(names) > 0
}

// SnapshotRecipients returns every registered send handle except exclude's.
// The slice is a copy taken under the lock; later joins and departures do not
// change it.
func (r *Registry) SnapshotRecipients(exclude ConnID) []Outbound {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Values(lo.OmitByKeys(r.connections, []ConnID{exclude}))
}

// TryClaimUsername admits or rejects a join attempt from id. A name is
// rejected when it is blank or already claimed by a different connection; the
// requester is then removed from the registry and sent a rejection notice. A
// connection that claims a name it already holds is admitted again.
func (r *Registry) TryClaimUsername(id ConnID, name string) JoinResult {
	name = strings.TrimSpace(name)

	res, rejected := r.claim(id, name)
	if rejected != nil {
		res.NoticeErr = rejected.Send(rejectionNotice(res.Reason))
	}
	return res
}

// claim runs the check and the mutation under one lock. On rejection it
// returns the requester's send handle so the notice goes out after unlocking.
func (r *Registry) claim(id ConnID, name string) (JoinResult, Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out, registered := r.connections[id]
	if !registered {
		return JoinResult{Username: name, Reason: ErrUnknownConn}, nil
	}

	var reason error
	if name == "" {
		reason = ErrEmptyUsername
	} else if owner, taken := r.claims[name]; taken && owner != id {
		reason = ErrUsernameTaken
	}

	if reason != nil {
		r.deregisterLocked(id)
		return JoinResult{Username: name, Reason: reason}, out
	}

	r.claims[name] = id
	if r.held[id] == nil {
		r.held[id] = make(map[string]struct{})
	}
	r.held[id][name] = struct{}{}
	return JoinResult{Admitted: true, Username: name}, nil
}

func (r *Registry) IsRegistered(id ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.connections[id]
	return ok
}

// Owner returns the connection currently holding username.
func (r *Registry) Owner(username string) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.claims[username]
	return id, ok
}

// Usernames lists the names claimed by id, sorted.
func (r *Registry) Usernames(id ConnID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := lo.Keys(r.held[id])
	sort.Strings(names)
	return names
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// JoinedCount returns the number of connections holding at least one username.
func (r *Registry) JoinedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.held)
}

// CloseAll closes every registered send handle and returns how many were
// closed. Entries stay registered until their handling tasks deregister them.
func (r *Registry) CloseAll() int {
	outs := r.SnapshotRecipients("")
	for _, out := range outs {
		out.Close()
	}
	return len(outs)
}
