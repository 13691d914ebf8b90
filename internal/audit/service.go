// Package audit keeps a git history of every published event lineage.
// Each lineage gets its own repository keyed by the anchor id, with one
// commit per review decision, so the full version trail survives even
// after superseded rows are refused or deleted.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"agenda/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Snapshot is the serialized shape of one event version as committed.
type Snapshot struct {
	ID               string          `json:"id"`
	State            string          `json:"state"`
	Description      string          `json:"description"`
	DescriptionLong  string          `json:"descriptionLong,omitempty"`
	Location         string          `json:"location,omitempty"`
	Start            time.Time       `json:"start"`
	End              time.Time       `json:"end"`
	Audience         string          `json:"audience"`
	TeachingAffected string          `json:"teachingAffected"`
	Classes          []string        `json:"classes"`
	ClassGroups      []string        `json:"classGroups"`
	DepartmentIDs    []string        `json:"departmentIds"`
	Meta             json.RawMessage `json:"meta,omitempty"`
}

// CommitInfo describes one entry of a lineage history.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// SnapshotOf flattens an event row into its committed form.
func SnapshotOf(event store.Event) Snapshot {
	return Snapshot{
		ID:               event.ID,
		State:            string(event.State),
		Description:      event.Description,
		DescriptionLong:  event.DescriptionLong,
		Location:         event.Location,
		Start:            event.Start,
		End:              event.End,
		Audience:         string(event.Audience),
		TeachingAffected: string(event.TeachingAffected),
		Classes:          event.Classes,
		ClassGroups:      event.ClassGroups,
		DepartmentIDs:    event.DepartmentIDs,
		Meta:             event.Meta,
	}
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// RecordSnapshot commits the given version to the lineage repository,
// initializing it on first use.
func (s *Service) RecordSnapshot(anchorID string, snapshot Snapshot, author, message string) (CommitInfo, error) {
	lock := s.lineageLock(anchorID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(anchorID)
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = s.initRepo(path)
	}
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open lineage repo: %w", err)
	}

	hash, err := s.commit(repo, snapshot, author, message)
	if err != nil {
		return CommitInfo{}, err
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists lineage commits, newest first. limit <= 0 means all.
func (s *Service) History(anchorID string, limit int) ([]CommitInfo, error) {
	lock := s.lineageLock(anchorID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(anchorID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open lineage repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// SnapshotByHash loads the committed version for a history entry.
func (s *Service) SnapshotByHash(anchorID, hash string) (Snapshot, error) {
	lock := s.lineageLock(anchorID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(anchorID))
	if err != nil {
		return Snapshot{}, fmt.Errorf("open lineage repo: %w", err)
	}

	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, err
	}

	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit object: %w", err)
	}
	return readSnapshotFromCommit(commitObj)
}

func (s *Service) initRepo(path string) (*git.Repository, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) commit(repo *git.Repository, snapshot Snapshot, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal snapshot: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, "event.json"), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write event.json: %w", err)
	}

	if _, err := worktree.Add("event.json"); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add snapshot: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.agenda.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit snapshot: %w", err)
	}
	return hash, nil
}

func (s *Service) repoPath(anchorID string) string {
	return filepath.Join(s.baseDir, anchorID)
}

func (s *Service) lineageLock(anchorID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[anchorID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[anchorID] = lock
	return lock
}

func readSnapshotFromCommit(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File("event.json")
	if err != nil {
		return Snapshot{}, fmt.Errorf("load event.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot bytes: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode commit snapshot: %w", err)
	}
	return snapshot, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
