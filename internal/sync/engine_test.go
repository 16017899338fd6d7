package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"vinylog/internal/models"
	"vinylog/internal/services"
	"vinylog/internal/shared"
	"vinylog/internal/store"
	"vinylog/internal/vault"
)

// fakeGitHub is an in-memory stand-in for the GitHub API: device flow,
// user profile and gist CRUD.
type fakeGitHub struct {
	mu           stdsync.Mutex
	pendingPolls int
	polls        int
	failGistGets bool
	gists        map[string]map[string]string // gist id -> filename -> content
	descriptions map[string]string
	nextGistID   int
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		gists:        map[string]map[string]string{},
		descriptions: map[string]string{},
		nextGistID:   1,
	}
}

func (f *fakeGitHub) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeGitHub) gistCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gists)
}

func (f *fakeGitHub) setFile(gistID, name, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gists[gistID][name] = content
}

func (f *fakeGitHub) setFailGistGets(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGistGets = fail
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/login/device/code", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"device_code":      "dev123",
			"user_code":        "ABCD-1234",
			"verification_uri": "http://127.0.0.1:1/device",
			"expires_in":       900,
		})
	})

	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.polls++
		pending := f.polls <= f.pendingPolls
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if pending {
			json.NewEncoder(w).Encode(map[string]string{"error": "authorization_pending"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "gho_test", "token_type": "bearer"})
	})

	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"login": "octocat", "name": "The Octocat"})
	})

	mux.HandleFunc("/gists", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			var list []map[string]interface{}
			for id, desc := range f.descriptions {
				list = append(list, map[string]interface{}{"id": id, "description": desc})
			}
			json.NewEncoder(w).Encode(list)
		case http.MethodPost:
			var payload struct {
				Description string                       `json:"description"`
				Files       map[string]map[string]string `json:"files"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("create gist decode: %v", err)
			}
			id := fmt.Sprintf("gist%d", f.nextGistID)
			f.nextGistID++
			f.descriptions[id] = payload.Description
			files := map[string]string{}
			for name, file := range payload.Files {
				files[name] = file["content"]
			}
			f.gists[id] = files
			json.NewEncoder(w).Encode(f.gistJSON(id))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/gists/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/gists/")
		f.mu.Lock()
		defer f.mu.Unlock()

		files, ok := f.gists[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch r.Method {
		case http.MethodGet:
			if f.failGistGets {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(f.gistJSON(id))
		case http.MethodPatch:
			var payload struct {
				Files map[string]map[string]string `json:"files"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("update gist decode: %v", err)
			}
			for name, file := range payload.Files {
				files[name] = file["content"]
			}
			json.NewEncoder(w).Encode(f.gistJSON(id))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	return mux
}

// gistJSON renders a gist response. Callers must hold f.mu.
func (f *fakeGitHub) gistJSON(id string) map[string]interface{} {
	files := map[string]interface{}{}
	for name, content := range f.gists[id] {
		files[name] = map[string]interface{}{"filename": name, "content": content}
	}
	return map[string]interface{}{"id": id, "description": f.descriptions[id], "files": files}
}

func (f *fakeGitHub) document(t *testing.T, gistID string) models.RemoteDocument {
	t.Helper()
	f.mu.Lock()
	content, ok := f.gists[gistID][DataFileName]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("gist %s has no data file", gistID)
	}

	var doc models.RemoteDocument
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		t.Fatalf("remote document unparseable: %v", err)
	}
	return doc
}

// recordingNotifier captures engine messages for assertions.
type recordingNotifier struct {
	mu     stdsync.Mutex
	infos  []string
	faults []string
}

func (n *recordingNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, message)
}

func (n *recordingNotifier) NotifyError(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faults = append(n.faults, message)
}

func (n *recordingNotifier) faultContaining(substr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.faults {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// recordingSink captures credentials handed to the catalog client.
type recordingSink struct {
	token    string
	username string
}

func (s *recordingSink) SetCredentials(token, username string) {
	s.token = token
	s.username = username
}

type device struct {
	engine *Engine
	store  *store.Store
	vault  *vault.Vault
	db     *sql.DB
}

// newDevice wires a full engine over an in-memory store and vault against
// the fake GitHub server.
func newDevice(t *testing.T, fake *fakeGitHub) *device {
	t.Helper()

	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	// One connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	vlt, err := vault.New(vault.NewMemoryBackend(), nil, nil)
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}

	github := services.NewGitHubClient("client-id", shared.SyncConfig{PollCap: 10}, nil)
	github.SetEndpoints(server.URL, server.URL+"/login/device/code", server.URL+"/login/oauth/access_token")
	github.SetPollInterval(time.Millisecond)

	st := store.New(db, nil)
	engine := NewEngine(github, vlt, st, shared.SyncConfig{DebounceMS: 10}, nil)

	return &device{engine: engine, store: st, vault: vlt, db: db}
}

func login(t *testing.T, d *device) {
	t.Helper()
	user, err := d.engine.Login(context.Background(), nil)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.Login != "octocat" {
		t.Fatalf("user = %+v", user)
	}
}

func TestLogin(t *testing.T) {
	t.Run("pending polls then token", func(t *testing.T) {
		fake := newFakeGitHub()
		fake.pendingPolls = 3
		d := newDevice(t, fake)

		var promptedCode string
		user, err := d.engine.Login(context.Background(), func(code, uri string) {
			promptedCode = code
		})
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}

		if promptedCode != "ABCD-1234" {
			t.Errorf("prompted code = %q", promptedCode)
		}
		if user.DisplayName() != "The Octocat" {
			t.Errorf("user = %+v", user)
		}
		if got := d.engine.State(); got != StateAuthenticated {
			t.Errorf("state = %v, want authenticated", got)
		}
		if got := fake.pollCount(); got != 4 {
			t.Errorf("polls = %d, want 4", got)
		}

		session, authed := d.vault.GitHub()
		if !authed || session.GistID == "" {
			t.Errorf("session = %+v, authed = %v; expected token and gist id", session, authed)
		}
	})

	t.Run("creates the data gist when none exists", func(t *testing.T) {
		fake := newFakeGitHub()
		d := newDevice(t, fake)
		login(t, d)

		if got := fake.gistCount(); got != 1 {
			t.Fatalf("got %d gists, want 1", got)
		}
		session, _ := d.vault.GitHub()
		doc := fake.document(t, session.GistID)
		if len(doc.PlayHistory) != 0 {
			t.Errorf("seed document history = %v", doc.PlayHistory)
		}
	})

	t.Run("reuses an existing gist by description", func(t *testing.T) {
		fake := newFakeGitHub()
		fake.descriptions["gist99"] = GistDescription
		fake.gists["gist99"] = map[string]string{DataFileName: `{"playHistory":[],"stats":{"totalPlays":0},"lastSync":""}`}

		d := newDevice(t, fake)
		login(t, d)

		session, _ := d.vault.GitHub()
		if session.GistID != "gist99" {
			t.Errorf("GistID = %q, want gist99", session.GistID)
		}
		if got := fake.gistCount(); got != 1 {
			t.Errorf("got %d gists, want 1", got)
		}
	})

	t.Run("cancellation abandons the flow", func(t *testing.T) {
		fake := newFakeGitHub()
		fake.pendingPolls = 1000
		d := newDevice(t, fake)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := d.engine.Login(ctx, nil)
		if err == nil {
			t.Fatal("expected login to fail")
		}
		if got := d.engine.State(); got != StateUnauthenticated {
			t.Errorf("state = %v, want unauthenticated", got)
		}
	})
}

func TestLogout(t *testing.T) {
	t.Run("clears the session but keeps the gist id", func(t *testing.T) {
		fake := newFakeGitHub()
		d := newDevice(t, fake)
		login(t, d)

		session, _ := d.vault.GitHub()
		gistID := session.GistID

		if err := d.engine.Logout(); err != nil {
			t.Fatalf("Logout() error = %v", err)
		}
		if got := d.engine.State(); got != StateUnauthenticated {
			t.Errorf("state = %v", got)
		}

		session, authed := d.vault.GitHub()
		if authed {
			t.Error("expected unauthenticated session")
		}
		if session.GistID != gistID {
			t.Errorf("GistID = %q, want %q", session.GistID, gistID)
		}
	})
}

func TestSyncFromRemote(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		d := newDevice(t, newFakeGitHub())
		if err := d.engine.SyncFromRemote(context.Background()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("merges remote plays into the local store", func(t *testing.T) {
		fake := newFakeGitHub()
		d := newDevice(t, fake)
		login(t, d)

		if _, err := d.store.AddPlay(models.Play{Title: "Harvest", Artist: "Neil Young", DateListened: "2024-01-05"}); err != nil {
			t.Fatalf("AddPlay() error = %v", err)
		}

		session, _ := d.vault.GitHub()
		remote := models.RemoteDocument{
			PlayHistory: []models.Play{{ID: "play_remote_1", Title: "Blue", Artist: "Joni Mitchell", DateListened: "2024-03-01"}},
			Stats:       models.CartridgeStats{TotalPlays: 5},
		}
		content, _ := json.Marshal(remote)
		fake.setFile(session.GistID, DataFileName, string(content))

		if err := d.engine.SyncFromRemote(context.Background()); err != nil {
			t.Fatalf("SyncFromRemote() error = %v", err)
		}

		history := d.store.LoadPlayHistory()
		if len(history) != 2 {
			t.Fatalf("got %d plays, want 2", len(history))
		}
		if history[0].Title != "Blue" {
			t.Errorf("newest play = %q, want Blue (2024-03-01 sorts first)", history[0].Title)
		}
		if got := d.store.Stats().TotalPlays; got != 5 {
			t.Errorf("TotalPlays = %d, want 5 (max wins)", got)
		}
		if d.store.LastSync().IsZero() {
			t.Error("expected last sync to be stamped")
		}
	})

	t.Run("malformed remote aborts with local state untouched", func(t *testing.T) {
		fake := newFakeGitHub()
		d := newDevice(t, fake)
		login(t, d)

		if _, err := d.store.AddPlay(models.Play{Title: "Harvest", DateListened: "2024-01-05"}); err != nil {
			t.Fatalf("AddPlay() error = %v", err)
		}

		session, _ := d.vault.GitHub()
		fake.setFile(session.GistID, DataFileName, "{not json")

		err := d.engine.SyncFromRemote(context.Background())
		if !errors.Is(err, shared.ErrParse) {
			t.Fatalf("expected ErrParse, got %v", err)
		}

		history := d.store.LoadPlayHistory()
		if len(history) != 1 || history[0].Title != "Harvest" {
			t.Errorf("local state disturbed: %+v", history)
		}
	})

	t.Run("applies remote discogs credentials when locally absent", func(t *testing.T) {
		fake := newFakeGitHub()
		d := newDevice(t, fake)
		login(t, d)

		session, _ := d.vault.GitHub()
		remote := models.RemoteDocument{
			PlayHistory: []models.Play{},
			DiscogsAuth: &models.CredentialBlob{APIKey: vault.Obfuscate("remote-tok"), Username: "alice"},
		}
		content, _ := json.Marshal(remote)
		fake.setFile(session.GistID, DataFileName, string(content))

		if err := d.engine.SyncFromRemote(context.Background()); err != nil {
			t.Fatalf("SyncFromRemote() error = %v", err)
		}

		creds, present := d.vault.Discogs()
		if !present || creds.Token != "remote-tok" || creds.Username != "alice" {
			t.Errorf("credentials = %+v, present = %v", creds, present)
		}
	})

	t.Run("adopted credentials reach the catalog client", func(t *testing.T) {
		fake := newFakeGitHub()
		d := newDevice(t, fake)
		login(t, d)

		sink := &recordingSink{}
		d.engine.SetCredentialSink(sink)

		session, _ := d.vault.GitHub()
		remote := models.RemoteDocument{
			PlayHistory: []models.Play{},
			DiscogsAuth: &models.CredentialBlob{APIKey: vault.Obfuscate("remote-tok"), Username: "alice"},
		}
		content, _ := json.Marshal(remote)
		fake.setFile(session.GistID, DataFileName, string(content))

		if err := d.engine.SyncFromRemote(context.Background()); err != nil {
			t.Fatalf("SyncFromRemote() error = %v", err)
		}

		if sink.token != "remote-tok" || sink.username != "alice" {
			t.Errorf("sink = %+v, want the adopted credentials", sink)
		}
	})
}

func TestSyncToRemote(t *testing.T) {
	t.Run("push merges the remote document before replacing it", func(t *testing.T) {
		fake := newFakeGitHub()
		d := newDevice(t, fake)
		login(t, d)

		if _, err := d.store.AddPlay(models.Play{Title: "Harvest", DateListened: "2024-01-05"}); err != nil {
			t.Fatalf("AddPlay() error = %v", err)
		}

		// Another device pushed between our last pull and this push.
		session, _ := d.vault.GitHub()
		remote := models.RemoteDocument{
			PlayHistory: []models.Play{{ID: "play_other_device", Title: "Blue", DateListened: "2024-03-01"}},
		}
		content, _ := json.Marshal(remote)
		fake.setFile(session.GistID, DataFileName, string(content))

		if err := d.engine.SyncToRemote(context.Background()); err != nil {
			t.Fatalf("SyncToRemote() error = %v", err)
		}

		doc := fake.document(t, session.GistID)
		if len(doc.PlayHistory) != 2 {
			t.Fatalf("remote history has %d plays, want 2", len(doc.PlayHistory))
		}
		if doc.PlayHistory[0].ID != "play_other_device" {
			t.Errorf("remote order: newest first expected, got %+v", doc.PlayHistory[0])
		}

		// The concurrent write also lands locally.
		history := d.store.LoadPlayHistory()
		if len(history) != 2 {
			t.Errorf("local history has %d plays, want 2", len(history))
		}
	})

	t.Run("aborts when the remote cannot be re-read", func(t *testing.T) {
		fake := newFakeGitHub()
		d := newDevice(t, fake)
		login(t, d)

		if _, err := d.store.AddPlay(models.Play{Title: "Harvest", DateListened: "2024-01-05"}); err != nil {
			t.Fatalf("AddPlay() error = %v", err)
		}

		session, _ := d.vault.GitHub()
		remote := models.RemoteDocument{
			PlayHistory: []models.Play{{ID: "play_other_device", Title: "Blue", DateListened: "2024-03-01"}},
		}
		content, _ := json.Marshal(remote)
		fake.setFile(session.GistID, DataFileName, string(content))

		// Reads fail, writes would still go through.
		fake.setFailGistGets(true)

		if err := d.engine.SyncToRemote(context.Background()); err == nil {
			t.Fatal("expected push to fail when the remote cannot be re-read")
		}

		fake.setFailGistGets(false)
		doc := fake.document(t, session.GistID)
		if len(doc.PlayHistory) != 1 || doc.PlayHistory[0].ID != "play_other_device" {
			t.Errorf("remote document disturbed by aborted push: %+v", doc.PlayHistory)
		}
	})

	t.Run("replaces a malformed remote document and reports it", func(t *testing.T) {
		fake := newFakeGitHub()
		d := newDevice(t, fake)
		login(t, d)

		notifier := &recordingNotifier{}
		d.engine.SetNotifier(notifier)

		if _, err := d.store.AddPlay(models.Play{Title: "Harvest", DateListened: "2024-01-05"}); err != nil {
			t.Fatalf("AddPlay() error = %v", err)
		}

		session, _ := d.vault.GitHub()
		fake.setFile(session.GistID, DataFileName, "{not json")

		if err := d.engine.SyncToRemote(context.Background()); err != nil {
			t.Fatalf("SyncToRemote() error = %v", err)
		}

		doc := fake.document(t, session.GistID)
		if len(doc.PlayHistory) != 1 || doc.PlayHistory[0].Title != "Harvest" {
			t.Errorf("remote document = %+v, want the local play only", doc.PlayHistory)
		}
		if !notifier.faultContaining("malformed") {
			t.Errorf("expected a malformed-remote notification, got %v", notifier.faults)
		}
	})

	t.Run("includes obfuscated discogs credentials", func(t *testing.T) {
		fake := newFakeGitHub()
		d := newDevice(t, fake)
		login(t, d)

		if !d.vault.ApplyRemoteCredentials(&models.CredentialBlob{APIKey: vault.Obfuscate("tok"), Username: "alice"}) {
			t.Fatal("failed to seed credentials")
		}

		if err := d.engine.SyncToRemote(context.Background()); err != nil {
			t.Fatalf("SyncToRemote() error = %v", err)
		}

		session, _ := d.vault.GitHub()
		doc := fake.document(t, session.GistID)
		if doc.DiscogsAuth == nil {
			t.Fatal("expected discogs credentials in the remote document")
		}
		if doc.DiscogsAuth.APIKey == "tok" {
			t.Error("expected the key to be obfuscated")
		}
	})
}

func TestTwoDeviceSync(t *testing.T) {
	t.Run("offline adds on both devices converge", func(t *testing.T) {
		fake := newFakeGitHub()
		deviceA := newDevice(t, fake)
		login(t, deviceA)

		deviceB := newDevice(t, fake)
		login(t, deviceB)

		if _, err := deviceA.store.AddPlay(models.Play{Title: "Harvest", DateListened: "2024-01-05"}); err != nil {
			t.Fatalf("AddPlay(A) error = %v", err)
		}
		if _, err := deviceB.store.AddPlay(models.Play{Title: "Blue", DateListened: "2024-03-01"}); err != nil {
			t.Fatalf("AddPlay(B) error = %v", err)
		}

		if err := deviceA.engine.SyncToRemote(context.Background()); err != nil {
			t.Fatalf("push A error = %v", err)
		}
		if err := deviceB.engine.SyncToRemote(context.Background()); err != nil {
			t.Fatalf("push B error = %v", err)
		}
		if err := deviceA.engine.SyncFromRemote(context.Background()); err != nil {
			t.Fatalf("pull A error = %v", err)
		}

		for name, d := range map[string]*device{"A": deviceA, "B": deviceB} {
			history := d.store.LoadPlayHistory()
			if len(history) != 2 {
				t.Fatalf("device %s has %d plays, want 2", name, len(history))
			}
			if history[0].Title != "Blue" || history[1].Title != "Harvest" {
				t.Errorf("device %s order = [%s, %s]", name, history[0].Title, history[1].Title)
			}
		}
	})
}

func TestDataChanged(t *testing.T) {
	t.Run("coalesces rapid mutations into one push", func(t *testing.T) {
		fake := newFakeGitHub()
		d := newDevice(t, fake)
		login(t, d)
		d.store.SetNotifier(d.engine)

		for i := 0; i < 5; i++ {
			if _, err := d.store.AddPlay(models.Play{Title: fmt.Sprintf("Album %d", i), DateListened: "2024-01-05"}); err != nil {
				t.Fatalf("AddPlay() error = %v", err)
			}
		}

		// Wait out the debounce window plus the push itself.
		deadline := time.Now().Add(2 * time.Second)
		session, _ := d.vault.GitHub()
		for time.Now().Before(deadline) {
			doc := fake.document(t, session.GistID)
			if len(doc.PlayHistory) == 5 {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatal("debounced push never landed all plays")
	})

	t.Run("ignored while unauthenticated", func(t *testing.T) {
		d := newDevice(t, newFakeGitHub())
		d.engine.DataChanged() // must not panic or schedule anything
		time.Sleep(30 * time.Millisecond)
		if got := d.engine.State(); got != StateUnauthenticated {
			t.Errorf("state = %v", got)
		}
	})
}
