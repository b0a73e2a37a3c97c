// Package coordinator drives a session end to end: splitting a file,
// scheduling its shards, sending them over a transport connection (or in
// local-loop mode for tests), and persisting progress so a transfer can
// resume after a restart.
package coordinator

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lzww0608/resilientfile/adaptive"
	"github.com/lzww0608/resilientfile/chunk"
	"github.com/lzww0608/resilientfile/internal/ringbuf"
	"github.com/lzww0608/resilientfile/internal/udpsess"
	"github.com/lzww0608/resilientfile/priority"
	"github.com/lzww0608/resilientfile/session"
	"github.com/lzww0608/resilientfile/transport"
)

var logger = zap.NewNop().Sugar()

// SetLogger replaces the package logger.
func SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		logger = l
	}
}

const (
	maxSendAttempts  = 3
	queueEmptySleep  = 100 * time.Millisecond
	localLoopSleep   = 10 * time.Millisecond
	speedWindowSize  = 32
	defaultQueueSize = 1024
)

// speedSample is one (timestamp, cumulative bytes) observation, the raw
// material for get_progress's rolling-window current_speed_bps.
type speedSample struct {
	at    time.Time
	bytes uint64
}

// transfer is the active-transfers map's entry: everything a worker and the
// control API need to share about one session.
type transfer struct {
	sessionID string
	fileID    string
	manifest  *chunk.Manifest

	machine *StateMachine
	queue   *priority.Queue

	opener transport.Opener // nil in local-loop mode
	conn   *transport.Conn  // closed when the transfer is retired, if non-nil

	mu        sync.Mutex
	remaining map[uint32]struct{}
	speed     *ringbuf.RingBuffer[speedSample]
	bytesDone uint64
	running   bool
}

// tryStart flips running false->true and reports whether it won the race,
// the at-most-one-worker-per-session gate for both SendFile and
// ResumeTransfer.
func (tr *transfer) tryStart() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.running {
		return false
	}
	tr.running = true
	return true
}

func (tr *transfer) stop() {
	tr.mu.Lock()
	tr.running = false
	tr.mu.Unlock()
}

func (tr *transfer) recordProgress(seq uint32, n uint64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	delete(tr.remaining, seq)
	tr.bytesDone += n
	if tr.speed.Len() >= speedWindowSize {
		tr.speed.Discard(1)
	}
	tr.speed.Push(speedSample{at: time.Now(), bytes: tr.bytesDone})
}

// recordGiveUp removes a permanently-failed shard from the remaining set
// without crediting any bytes, so the worker loop's completion check is not
// held open forever by a shard that exhausted its retry budget.
func (tr *transfer) recordGiveUp(seq uint32) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	delete(tr.remaining, seq)
}

func (tr *transfer) isDone() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.remaining) == 0
}

func (tr *transfer) currentSpeedBps() float64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	oldest, ok := tr.speed.Peek()
	if !ok {
		return 0
	}
	newest := oldest
	tr.speed.ForEach(func(s *speedSample) bool {
		newest = s
		return true
	})
	elapsed := newest.at.Sub(oldest.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(newest.bytes-oldest.bytes) / elapsed
}

// Progress is the snapshot returned by GetProgress.
type Progress struct {
	Completed       int
	Total           int
	BytesCompleted  uint64
	BytesTotal      uint64
	Percent         float64
	Status          session.Status
	CurrentSpeedBps float64
}

// Coordinator wires together the block codec, the priority queue, the
// adaptive controller, the transport adapter, and the session store into
// the control API a caller drives a transfer through.
type Coordinator struct {
	store    *session.Store
	codec    *chunk.Codec
	adaptive *adaptive.Controller
	udpCfg   *udpsess.Config

	queueCapacity int

	active    sync.Map // session_id -> *transfer
	recent    sync.Map // session_id -> *transfer (post-terminal, observability only)
	fileIndex sync.Map // file_id -> session_id
}

// Config bundles the constructor dependencies a Coordinator needs.
type Config struct {
	Store         *session.Store
	Codec         *chunk.Codec
	Adaptive      *adaptive.Controller
	TransportCfg  *udpsess.Config
	QueueCapacity int
}

// New builds a Coordinator. QueueCapacity defaults to 1024 when zero.
func New(cfg Config) *Coordinator {
	queueCap := cfg.QueueCapacity
	if queueCap == 0 {
		queueCap = defaultQueueSize
	}
	return &Coordinator{
		store:         cfg.Store,
		codec:         cfg.Codec,
		adaptive:      cfg.Adaptive,
		udpCfg:        cfg.TransportCfg,
		queueCapacity: queueCap,
	}
}

// SendFile splits path, persists a new session, and spawns its worker. A
// second call for a file_id already in flight fails with
// AlreadyInProgressError.
func (c *Coordinator) SendFile(path, fileID string, pr chunk.Priority, receiverAddr string) (string, error) {
	if _, dup := c.fileIndex.LoadOrStore(fileID, ""); dup {
		return "", &AlreadyInProgressError{FileID: fileID}
	}

	sessionID := uuid.NewString()
	c.fileIndex.Store(fileID, sessionID)

	manifest, shards, err := c.codec.Split(path, fileID, pr)
	if err != nil {
		c.fileIndex.Delete(fileID)
		return "", &CoordinatorError{Op: "send_file", Err: err}
	}
	manifest.ReceiverAddr = receiverAddr

	rec := session.NewRecord(sessionID, fileID, manifest)
	rec.FilePath = path
	rec.ReceiverAddr = receiverAddr
	rec.Status = session.Status{Kind: session.StatusActive}
	if err := c.store.Save(rec); err != nil {
		c.fileIndex.Delete(fileID)
		return "", &CoordinatorError{Op: "send_file", Err: err}
	}

	tr, err := c.newTransfer(sessionID, fileID, manifest, receiverAddr)
	if err != nil {
		c.fileIndex.Delete(fileID)
		return "", &CoordinatorError{Op: "send_file", Err: err}
	}
	if _, err := tr.machine.Transition(StartEvent()); err != nil {
		c.fileIndex.Delete(fileID)
		return "", &CoordinatorError{Op: "send_file", Err: err}
	}

	for _, s := range shards {
		if err := tr.queue.Enqueue(s); err != nil {
			c.fileIndex.Delete(fileID)
			return "", &CoordinatorError{Op: "send_file", Err: err}
		}
	}

	tr.tryStart()
	c.active.Store(sessionID, tr)
	go c.runWorker(tr)
	return sessionID, nil
}

// ResumeTransfer restarts a paused or failed session's worker. If this
// process still holds the session's transfer handle (a pause in this same
// run), it is reused so GetState/GetProgress keep seeing the same object;
// otherwise a fresh handle is rebuilt from the session store, which is the
// path taken after a process restart.
func (c *Coordinator) ResumeTransfer(sessionID string) error {
	if existing, ok := c.activeTransfer(sessionID); ok {
		for !existing.tryStart() {
			if existing.machine.Current().Kind != StatePaused {
				return nil // idempotent: a worker is already running
			}
			if _, still := c.activeTransfer(sessionID); !still {
				return &TransferNotFoundError{SessionID: sessionID}
			}
			// Paused, but the worker has not reached its loop top yet;
			// wait for it to stop instead of dropping this resume.
			time.Sleep(time.Millisecond)
		}
		if _, err := existing.machine.Transition(ResumeEvent()); err != nil {
			existing.stop()
			return &CoordinatorError{Op: "resume_transfer", Err: err}
		}
		go c.runWorker(existing)
		return nil
	}

	info, err := c.store.GetResumeInfo(sessionID)
	if err != nil {
		return &CoordinatorError{Op: "resume_transfer", Err: err}
	}
	if !info.CanResume {
		return &CoordinatorError{Op: "resume_transfer", Err: &session.CannotResumeError{SessionID: sessionID, Reason: "status does not permit resume"}}
	}

	tr, err := c.newTransfer(sessionID, info.FileID, info.Manifest, info.ReceiverAddr)
	if err != nil {
		return &CoordinatorError{Op: "resume_transfer", Err: err}
	}
	if _, err := tr.machine.Transition(StartEvent()); err != nil {
		return &CoordinatorError{Op: "resume_transfer", Err: err}
	}
	if _, err := tr.machine.Transition(ChunkCompletedEvent(0)); err != nil {
		return &CoordinatorError{Op: "resume_transfer", Err: err}
	}
	tr.tryStart()

	if info.FilePath == "" {
		logger.Warnw("resume_transfer: no stored file path, cannot re-split", "session_id", sessionID)
	} else if _, shards, err := c.codec.Split(info.FilePath, info.FileID, info.Manifest.Priority); err != nil {
		logger.Warnw("resume_transfer: re-split failed, session stays without sendable shards", "session_id", sessionID, "error", err)
	} else {
		for _, s := range shards {
			if _, done := info.Completed[s.Metadata.SequenceNumber]; done {
				tr.recordProgress(s.Metadata.SequenceNumber, 0)
				continue
			}
			if err := tr.queue.Enqueue(s); err != nil {
				return &CoordinatorError{Op: "resume_transfer", Err: err}
			}
		}
	}

	c.fileIndex.Store(info.FileID, sessionID)
	c.active.Store(sessionID, tr)
	go c.runWorker(tr)
	return nil
}

// PauseTransfer flips a running session's state machine to Paused; the
// worker observes this at the top of its next loop iteration and exits.
func (c *Coordinator) PauseTransfer(sessionID string) error {
	tr, ok := c.activeTransfer(sessionID)
	if !ok {
		return &TransferNotFoundError{SessionID: sessionID}
	}
	if _, err := tr.machine.Transition(PauseEvent()); err != nil {
		return &CoordinatorError{Op: "pause_transfer", Err: err}
	}
	return c.store.UpdateStatus(sessionID, session.Status{Kind: session.StatusPaused})
}

// CancelTransfer transitions a session to Failed("Cancelled by user"),
// persists it, and removes it from the active map. It is idempotent.
func (c *Coordinator) CancelTransfer(sessionID string) error {
	tr, ok := c.activeTransfer(sessionID)
	if !ok {
		// Already terminal or unknown to this process; still try to flip
		// the persisted status so a caller's intent is not lost.
		if err := c.store.UpdateStatus(sessionID, session.Failed(userCancelledReason)); err != nil {
			return &TransferNotFoundError{SessionID: sessionID}
		}
		return nil
	}
	_, _ = tr.machine.Transition(CancelEvent())
	if err := c.store.UpdateStatus(sessionID, session.Failed(userCancelledReason)); err != nil {
		return &CoordinatorError{Op: "cancel_transfer", Err: err}
	}
	c.retireTransfer(tr)
	return nil
}

// GetProgress reports a session's completion and throughput snapshot.
func (c *Coordinator) GetProgress(sessionID string) (Progress, error) {
	rec, err := c.store.Load(sessionID)
	if err != nil {
		return Progress{}, &CoordinatorError{Op: "get_progress", Err: err}
	}

	total := int(rec.Manifest.TotalShards)
	completed := len(rec.Completed)
	var percent float64
	if total > 0 {
		percent = float64(completed) / float64(total) * 100
	}

	p := Progress{
		Completed:      completed,
		Total:          total,
		BytesCompleted: rec.BytesCompleted,
		BytesTotal:     rec.Manifest.FileSize,
		Percent:        percent,
		Status:         rec.Status,
	}
	if tr, ok := c.activeTransfer(sessionID); ok {
		p.CurrentSpeedBps = tr.currentSpeedBps()
	}
	return p, nil
}

// GetState returns a session's live automaton state, if this process holds
// its transfer handle (running, or paused in this process).
func (c *Coordinator) GetState(sessionID string) (State, error) {
	tr, ok := c.activeTransfer(sessionID)
	if !ok {
		return State{}, &TransferNotFoundError{SessionID: sessionID}
	}
	return tr.machine.Current(), nil
}

// ListActive returns the session IDs held in the active map: running
// transfers and transfers paused in this process.
func (c *Coordinator) ListActive() []string {
	var ids []string
	c.active.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	return ids
}

// ListRecent returns session IDs that reached a terminal state and were
// retired from the active map, kept around for observability.
func (c *Coordinator) ListRecent() []string {
	var ids []string
	c.recent.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	return ids
}

func (c *Coordinator) activeTransfer(sessionID string) (*transfer, bool) {
	v, ok := c.active.Load(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*transfer), true
}

func (c *Coordinator) retireTransfer(tr *transfer) {
	if tr.conn != nil {
		_ = tr.conn.Close()
	}
	c.active.Delete(tr.sessionID)
	c.recent.Store(tr.sessionID, tr)
	c.fileIndex.Delete(tr.fileID)
}

func (c *Coordinator) newTransfer(sessionID, fileID string, manifest *chunk.Manifest, receiverAddr string) (*transfer, error) {
	tr := &transfer{
		sessionID: sessionID,
		fileID:    fileID,
		manifest:  manifest,
		machine:   NewStateMachine(),
		queue:     priority.NewQueue(c.queueCapacity),
		remaining: make(map[uint32]struct{}, manifest.TotalShards),
		speed:     ringbuf.New[speedSample](speedWindowSize),
	}
	for i := uint32(0); i < manifest.TotalShards; i++ {
		tr.remaining[i] = struct{}{}
	}

	if receiverAddr == "" {
		return tr, nil
	}
	conn, err := transport.Connect(receiverAddr, c.udpCfg)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	tr.conn = conn
	tr.opener = conn
	return tr, nil
}

// runWorker is the send pipeline's step 5: dequeue, send-with-retry, record
// completion or failure, and honour pause/cancel at each loop top. It never
// holds the queue's, the machine's, and the transfer's locks simultaneously.
func (c *Coordinator) runWorker(tr *transfer) {
	for {
		state := tr.machine.Current()
		switch state.Kind {
		case StatePaused:
			// The worker stops, but the transfer handle stays in the
			// active map so GetState/GetProgress still resolve it and
			// ResumeTransfer can restart the same handle in-process.
			tr.stop()
			return
		case StateFailed, StateCompleted:
			return
		}

		shard, err := tr.queue.Dequeue()
		if err != nil {
			if tr.isDone() {
				c.finishTransfer(tr)
				return
			}
			time.Sleep(queueEmptySleep)
			continue
		}

		seq := shard.Metadata.SequenceNumber
		ok := c.sendShard(tr, shard)
		if ok {
			c.adaptive.RecordSuccess()
			if err := c.store.MarkChunkCompleted(tr.sessionID, seq, uint64(shard.Metadata.Length)); err != nil {
				logger.Errorw("mark_chunk_completed failed", "session_id", tr.sessionID, "seq", seq, "error", err)
			}
			tr.recordProgress(seq, uint64(shard.Metadata.Length))
			if _, err := tr.machine.Transition(ChunkCompletedEvent(seq)); err != nil {
				logger.Errorw("chunk-completed transition rejected", "session_id", tr.sessionID, "error", err)
			}
		} else {
			c.adaptive.RecordLoss()
			if err := c.store.MarkChunkFailed(tr.sessionID, seq); err != nil {
				logger.Errorw("mark_chunk_failed failed", "session_id", tr.sessionID, "seq", seq, "error", err)
			}
			if _, err := tr.machine.Transition(ChunkFailedEvent(seq, "retries exhausted")); err != nil {
				logger.Errorw("chunk-failed transition rejected", "session_id", tr.sessionID, "error", err)
			}
			tr.recordGiveUp(seq)
		}

		if tr.isDone() {
			c.finishTransfer(tr)
			return
		}
	}
}

func (c *Coordinator) sendShard(tr *transfer, shard *chunk.Shard) bool {
	if tr.opener == nil {
		time.Sleep(localLoopSleep) // local-loop mode: no real send, used by tests
		return true
	}
	return transport.SendWithRetry(tr.opener, shard, maxSendAttempts) == nil
}

func (c *Coordinator) finishTransfer(tr *transfer) {
	if _, err := tr.machine.Transition(TransferCompleteEvent()); err != nil {
		logger.Errorw("transfer-complete transition rejected", "session_id", tr.sessionID, "error", err)
	}
	if err := c.store.UpdateStatus(tr.sessionID, session.Status{Kind: session.StatusCompleted}); err != nil {
		logger.Errorw("update_status(Completed) failed", "session_id", tr.sessionID, "error", err)
	}
	c.retireTransfer(tr)
}
