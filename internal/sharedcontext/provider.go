// Package sharedcontext implements the shared-context provider: an
// append-only channel log, per-agent inbox cursors, team documents, and
// resources, all scoped to one (workflow, tag) context directory.
package sharedcontext

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const channelLogFile = "channel.log"

// MentionCallback is invoked once per distinct agent addressed by an
// explicit `to` or an @mention whenever appendChannel writes an entry —
// used by the MCP server to wake idle recipients.
type MentionCallback func(agent string, entry ChannelEntry)

// Provider is the shared-context provider for one (workflow, tag) pair.
// Concurrent writers within one context directory serialize their channel
// appends through mu so ids remain strictly increasing.
type Provider struct {
	dir string

	mu       sync.Mutex
	lastID   int64
	onMention MentionCallback

	cursorMu sync.Mutex
	cursors  map[string]int64 // agent -> last acked id
}

// Open loads (or creates) the context directory at dir, scanning the
// existing channel log to recover the last-assigned id and every agent's
// inbox cursor.
func Open(dir string) (*Provider, error) {
	if err := os.MkdirAll(filepath.Join(dir, "documents"), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, "resources"), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, "inbox"), 0o755); err != nil {
		return nil, err
	}

	p := &Provider{dir: dir, cursors: make(map[string]int64)}

	lastID, err := p.scanLastID()
	if err != nil {
		return nil, err
	}
	p.lastID = lastID

	if err := p.loadCursors(); err != nil {
		return nil, err
	}
	return p, nil
}

// SetMentionCallback installs the callback invoked on channel writes
// whose content mentions an agent or whose `to` addresses one.
func (p *Provider) SetMentionCallback(cb MentionCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onMention = cb
}

type AppendOptions struct {
	To   string
	Kind EntryKind
}

// AppendChannel appends one entry atomically — the write is a single
// os.OpenFile(O_APPEND)+Write call under mu, so no two entries can
// interleave mid-line, and assigns the next monotonic id.
func (p *Provider) AppendChannel(from, content string, opts AppendOptions) (ChannelEntry, error) {
	kind := opts.Kind
	if kind == "" {
		kind = KindMessage
	}

	p.mu.Lock()
	p.lastID++
	entry := ChannelEntry{
		ID:        p.lastID,
		From:      from,
		To:        opts.To,
		Kind:      kind,
		Content:   content,
		Mentions:  extractMentions(content),
		Timestamp: time.Now(),
	}

	line, err := json.Marshal(entry)
	if err != nil {
		p.mu.Unlock()
		return ChannelEntry{}, err
	}
	if err := p.appendLine(line); err != nil {
		p.mu.Unlock()
		return ChannelEntry{}, err
	}
	cb := p.onMention
	p.mu.Unlock()

	if cb != nil {
		notified := make(map[string]bool)
		if opts.To != "" {
			notified[opts.To] = true
			cb(opts.To, entry)
		}
		for _, m := range entry.Mentions {
			if !notified[m] {
				notified[m] = true
				cb(m, entry)
			}
		}
	}

	return entry, nil
}

func (p *Provider) appendLine(line []byte) error {
	f, err := os.OpenFile(filepath.Join(p.dir, channelLogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadOptions filters ReadChannel.
type ReadOptions struct {
	Since int64 // exclusive
	Limit int   // 0 = unlimited
	Agent string
	Admin bool
}

// ReadChannel returns entries after Since, filtering out DMs not
// addressed to Agent and, unless Admin, filtering out log/system entries.
func (p *Provider) ReadChannel(opts ReadOptions) ([]ChannelEntry, error) {
	all, err := p.readAll()
	if err != nil {
		return nil, err
	}

	var out []ChannelEntry
	for _, e := range all {
		if e.ID <= opts.Since {
			continue
		}
		if e.To != "" && e.To != opts.Agent {
			continue
		}
		if !opts.Admin && (e.Kind == KindLog || e.Kind == KindSystem) {
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

// GetInbox returns entries addressed to agent (via To or @mention) with
// id greater than the agent's acked cursor. Non-destructive until Ack.
func (p *Provider) GetInbox(agent string) ([]InboxMessage, error) {
	all, err := p.readAll()
	if err != nil {
		return nil, err
	}

	p.cursorMu.Lock()
	lastAcked := p.cursors[agent]
	p.cursorMu.Unlock()

	var out []InboxMessage
	for _, e := range all {
		if e.ID <= lastAcked {
			continue
		}
		if e.To == agent || containsString(e.Mentions, agent) {
			out = append(out, e)
		}
	}
	return out, nil
}

// AckInbox advances agent's cursor to untilId. A later ack can never
// move the cursor backwards.
func (p *Provider) AckInbox(agent string, untilID int64) error {
	p.cursorMu.Lock()
	if untilID > p.cursors[agent] {
		p.cursors[agent] = untilID
	}
	cursor := p.cursors[agent]
	p.cursorMu.Unlock()

	return p.writeCursor(agent, cursor)
}

func (p *Provider) cursorPath(agent string) string {
	return filepath.Join(p.dir, "inbox", sanitize(agent)+".cursor")
}

func (p *Provider) writeCursor(agent string, cursor int64) error {
	return atomicWriteFile(p.dir, p.cursorPath(agent), []byte(strconv.FormatInt(cursor, 10)))
}

func (p *Provider) loadCursors() error {
	entries, err := os.ReadDir(filepath.Join(p.dir, "inbox"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".cursor" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.dir, "inbox", e.Name()))
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			continue
		}
		agent := strings.TrimSuffix(e.Name(), ".cursor")
		p.cursors[agent] = n
	}
	return nil
}

func (p *Provider) scanLastID() (int64, error) {
	entries, err := p.readAll()
	if err != nil {
		return 0, err
	}
	var max int64
	for _, e := range entries {
		if e.ID > max {
			max = e.ID
		}
	}
	return max, nil
}

func (p *Provider) readAll() ([]ChannelEntry, error) {
	f, err := os.Open(filepath.Join(p.dir, channelLogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []ChannelEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e ChannelEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, scanner.Err()
}

// --- Documents ---

const defaultDocument = "README.md"

func (p *Provider) documentPath(file string) (string, error) {
	if file == "" {
		file = defaultDocument
	}
	if file == "." || strings.ContainsAny(file, `\`) || !filepath.IsLocal(file) {
		return "", fmt.Errorf("sharedcontext: invalid document name %q", file)
	}
	return filepath.Join(p.dir, "documents", file), nil
}

func (p *Provider) ReadDocument(file string) (string, error) {
	path, err := p.documentPath(file)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func (p *Provider) WriteDocument(content, file string) error {
	path, err := p.documentPath(file)
	if err != nil {
		return err
	}
	return atomicWriteFile(filepath.Dir(path), path, []byte(content))
}

func (p *Provider) AppendDocument(content, file string) error {
	existing, err := p.ReadDocument(file)
	if err != nil {
		return err
	}
	return p.WriteDocument(existing+content, file)
}

func (p *Provider) CreateDocument(file, content string) error {
	path, err := p.documentPath(file)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("sharedcontext: document %q already exists", file)
	}
	return atomicWriteFile(filepath.Dir(path), path, []byte(content))
}

func (p *Provider) ListDocuments() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.dir, "documents"))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// --- Resources ---

func (p *Provider) CreateResource(content, createdBy string, typ ResourceType) (Resource, error) {
	if typ == "" {
		typ = ResourceText
	}
	res := Resource{
		ID:        "res_" + uuid.NewString(),
		Type:      typ,
		Content:   content,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return Resource{}, err
	}
	path := filepath.Join(p.dir, "resources", res.ID+".json")
	if err := atomicWriteFile(filepath.Dir(path), path, data); err != nil {
		return Resource{}, err
	}
	return res, nil
}

func (p *Provider) ReadResource(id string) (Resource, error) {
	path := filepath.Join(p.dir, "resources", filepath.Base(id)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return Resource{}, err
	}
	var res Resource
	if err := json.Unmarshal(data, &res); err != nil {
		return Resource{}, err
	}
	return res, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func sanitize(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(name)
}

func atomicWriteFile(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "entry-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
