package cr35

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Events carries optional observer callbacks. They are invoked
// synchronously from the session loop; handlers must not block and must
// not call back into the Device from the same goroutine path that would
// deadlock on the loop (posting work via Start/Stop is safe, they are
// asynchronous).
type Events struct {
	Connected    func()
	Disconnected func()
	Error        func(err error)
	Started      func()
	Stopped      func()
	NewData      func()
	ImageReady   func(img *Image)
}

// Device drives a single CR35 over one TCP connection: token bootstrap,
// login handshake, acquisition start/stop, image polling and reassembly.
//
// All protocol state is owned by one session-loop goroutine; the public
// API posts work into that loop or reads mutex-guarded snapshots, so the
// Device is safe for concurrent use.
type Device struct {
	events Events
	now    func() time.Time // injectable for timeout tests

	mu        sync.RWMutex
	connected bool
	state     uint32
	modeList  []string
	readErr   error

	apiCh    chan func()
	closing  chan struct{}
	loopDone chan struct{}

	// Session-loop owned; never touched from other goroutines.
	conn        net.Conn
	clientID    []byte
	tokens      map[string]uint32
	queue       commandQueue
	current     Command
	lastCommand time.Time
	rxBuf       []byte
	imageData   []byte
	started     bool
	wasScanning bool
	pollTimer   *time.Timer
	stopSignal  chan struct{} // closed when the Stop response arrives
}

// New creates a disconnected Device with the given event callbacks.
func New(events Events) *Device {
	return &Device{events: events, now: time.Now}
}

// Connect dials the device and starts the session. It returns once the
// TCP connection is established; the token bootstrap and login handshake
// run asynchronously and progress is reported via Events. Calling
// Connect while a session is active is an error: the driver speaks to
// one device at a time.
func (d *Device) Connect(addr string, port uint16) error {
	d.mu.Lock()
	if d.connected {
		d.mu.Unlock()
		return errors.New("already connected")
	}
	d.mu.Unlock()

	target := net.JoinHostPort(addr, strconv.Itoa(int(port)))
	slog.Info("connecting to device", "addr", target)
	conn, err := net.DialTimeout("tcp", target, dialTimeout)
	if err != nil {
		return fmt.Errorf("connect %s: %w", target, err)
	}

	// Fresh per-connection state.
	d.conn = conn
	d.clientID = make([]byte, clientIDSize)
	rand.Read(d.clientID)
	d.tokens = make(map[string]uint32, len(tokenNames))
	d.queue.clear()
	d.current = Command{}
	d.rxBuf = nil
	d.imageData = nil
	d.started = false
	d.wasScanning = false
	d.stopSignal = nil

	rxCh := make(chan []byte, 16)
	d.mu.Lock()
	d.connected = true
	d.state = StateUnknown
	d.modeList = nil
	d.readErr = nil
	d.apiCh = make(chan func(), 16)
	d.closing = make(chan struct{})
	d.loopDone = make(chan struct{})
	d.mu.Unlock()

	go d.readLoop(conn, rxCh, d.closing)
	go d.run(rxCh)
	return nil
}

// IsConnected reports whether the session socket is up.
func (d *Device) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// State returns the last device state reported via SystemState.
func (d *Device) State() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// ModeList returns the cached acquisition mode list, parsed from the
// ModeList response during login.
func (d *Device) ModeList() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.modeList...)
}

// Start enqueues the acquisition start sequence for the given mode.
// Ignored while disconnected or already started.
func (d *Device) Start(mode uint32) {
	d.post(func() {
		if d.started {
			return
		}
		slog.Info("start acquisition", "mode", mode)
		d.queue.enqueue(commandU32("Mode", mode))
		d.queue.enqueue(commandU32("PollingOnly", 1))
		d.queue.enqueue(commandU16("Start", 1))
		d.imageData = nil
	})
}

// Stop enqueues the acquisition stop sequence. Ignored while
// disconnected or not started.
func (d *Device) Stop() {
	d.post(func() { d.stopAcquisition() })
}

// Erase enqueues a plate-erase command.
func (d *Device) Erase() {
	d.post(func() {
		slog.Info("erase plate")
		d.queue.enqueue(commandU16("Erasor", 1))
	})
}

// ReadDeviceInfo enqueues DeviceId and Version reads. The responses are
// logged by the generic dispatch path; this exists for diagnostics.
func (d *Device) ReadDeviceInfo() {
	d.post(func() {
		d.queue.enqueue(readDataCommand("DeviceId"))
		d.queue.enqueue(readDataCommand("Version"))
	})
}

// Disconnect performs the shutdown choreography: stop acquisition if
// running, wait (bounded) for the device to confirm, then close the
// socket, aborting if the peer does not complete the close in time.
// Safe to call when not connected.
func (d *Device) Disconnect() {
	d.mu.RLock()
	connected := d.connected
	conn := d.conn
	loopDone := d.loopDone
	d.mu.RUnlock()
	if !connected {
		return
	}

	stopped := make(chan struct{})
	posted := make(chan bool, 1)
	d.post(func() {
		d.stopPollTimer()
		if d.started {
			d.stopSignal = stopped
			d.stopAcquisition()
			posted <- true
		} else {
			posted <- false
		}
	})

	select {
	case wasStarted := <-posted:
		if wasStarted {
			select {
			case <-stopped:
			case <-time.After(commandTimeout):
				slog.Warn("stop confirmation timed out")
			}
		}
	case <-loopDone:
	}

	slog.Info("disconnecting from device")
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
		select {
		case <-loopDone:
			return
		case <-time.After(commandTimeout):
			slog.Warn("graceful close timed out, aborting")
		}
	}
	conn.Close()
	<-loopDone
}

// Close disconnects; it implements io.Closer for callers that manage the
// Device as a resource.
func (d *Device) Close() error {
	d.Disconnect()
	return nil
}

// post runs fn on the session loop. No-op when disconnected.
func (d *Device) post(fn func()) {
	d.mu.RLock()
	connected := d.connected
	ch := d.apiCh
	closing := d.closing
	d.mu.RUnlock()
	if !connected || ch == nil {
		return
	}
	select {
	case ch <- fn:
	case <-closing:
	}
}

// readLoop forwards socket chunks into the session loop and closes rxCh
// on EOF or error.
func (d *Device) readLoop(conn net.Conn, rxCh chan<- []byte, closing <-chan struct{}) {
	defer close(rxCh)
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case rxCh <- chunk:
			case <-closing:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				d.mu.Lock()
				d.readErr = err
				d.mu.Unlock()
			}
			return
		}
	}
}

// run is the session loop. It owns every piece of protocol state; socket
// bytes, timer ticks and posted API calls are all handled here, one at a
// time.
func (d *Device) run(rxCh <-chan []byte) {
	defer close(d.loopDone)

	queueTick := time.NewTicker(queueTickInterval)
	defer queueTick.Stop()
	d.pollTimer = time.NewTimer(imagePollInterval)
	d.stopPollTimer()
	defer d.pollTimer.Stop()

	d.bootstrap()
	if d.events.Connected != nil {
		d.events.Connected()
	}

	for {
		select {
		case chunk, ok := <-rxCh:
			if !ok {
				d.teardown()
				return
			}
			d.handleBytes(chunk)
		case <-queueTick.C:
			d.drainQueue()
		case <-d.pollTimer.C:
			d.pollImageData()
		case fn := <-d.apiCh:
			fn()
		}
	}
}

// bootstrap queues the token requests and the login sequence. Enqueue
// order guarantees every token is resolved before a command that uses
// it is transmitted.
func (d *Device) bootstrap() {
	slog.Info("socket connected, starting bootstrap")
	for _, name := range tokenNames {
		if _, known := d.tokens[name]; !known {
			d.queue.enqueue(readTokenCommand(name))
		}
	}
	d.queue.enqueue(commandU16("Connect", 1))
	d.queue.enqueue(commandString("UserId", "user@BACKUP"))
	d.queue.enqueue(commandString("SystemDate", d.now().UTC().Format(http.TimeFormat)))
	d.queue.enqueue(readDataCommand("ModeList"))
	d.queue.enqueue(readDataCommand("SystemState"))
}

// teardown runs when the socket drains or breaks: release the session
// and report the terminal events.
func (d *Device) teardown() {
	d.stopPollTimer()
	if d.stopSignal != nil {
		close(d.stopSignal)
		d.stopSignal = nil
	}
	d.conn.Close()

	d.mu.Lock()
	err := d.readErr
	d.connected = false
	d.mu.Unlock()
	close(d.closing)

	d.queue.clear()
	d.current = Command{}
	d.rxBuf = nil

	if err != nil {
		slog.Error("socket error", "err", err)
		if d.events.Error != nil {
			d.events.Error(err)
		}
	}
	slog.Info("disconnected from device")
	if d.events.Disconnected != nil {
		d.events.Disconnected()
	}
}

// stopAcquisition queues the stop sequence. Loop context only.
func (d *Device) stopAcquisition() {
	if !d.started {
		return
	}
	slog.Info("stop acquisition")
	d.stopPollTimer()
	d.queue.enqueue(commandU16("StopRequest", 1))
	d.queue.enqueue(commandU16("Stop", 1))
}

// drainQueue sends the head command when the wire is free. A command in
// flight blocks the queue until its response arrives or it times out; a
// timed-out command is abandoned with a warning and the next proceeds.
func (d *Device) drainQueue() {
	if d.queue.len() == 0 {
		return
	}
	if d.current.Packet != packetUnknown {
		if d.now().Sub(d.lastCommand) < commandTimeout {
			return
		}
		slog.Warn("command timeout", "name", d.current.Name)
	}

	cmd, _ := d.queue.pop()
	d.current = cmd
	d.lastCommand = d.now()

	var packet []byte
	switch cmd.Packet {
	case packetReadToken:
		packet = createTokenRequestPacket(d.clientID, cmd.Name)
	case packetReadData:
		packet = createReadDataPacket(d.clientID, d.tokenID(cmd.Name))
	default:
		packet = createCommandPacket(d.tokenID(cmd.Name), cmd)
	}

	slog.Debug("sending packet", "name", cmd.Name, "data", hex.EncodeToString(packet))
	if _, err := d.conn.Write(packet); err != nil {
		slog.Error("socket write failed", "name", cmd.Name, "err", err)
		if d.events.Error != nil {
			d.events.Error(err)
		}
		// Connection is broken; force the read side down too.
		d.conn.Close()
	}
}

// pollImageData runs on the single-shot poll timer: while acquiring,
// request a state refresh and the next image data slice.
func (d *Device) pollImageData() {
	if !d.started {
		return
	}
	d.queue.enqueue(readDataCommand("SystemState"))
	d.queue.enqueue(readDataCommand("ImageData"))
}

func (d *Device) armPollTimer() {
	d.stopPollTimer()
	d.pollTimer.Reset(imagePollInterval)
}

func (d *Device) stopPollTimer() {
	if !d.pollTimer.Stop() {
		select {
		case <-d.pollTimer.C:
		default:
		}
	}
}

// tokenID resolves a command name to its session token, or tokenNotFound
// when the bootstrap has not answered yet.
func (d *Device) tokenID(name string) uint32 {
	if id, ok := d.tokens[name]; ok {
		return id
	}
	return tokenNotFound
}

// handleBytes is the frame reassembler entry point: buffer the chunk,
// and once a full logical message is present, dispatch it and retire the
// current command.
func (d *Device) handleBytes(chunk []byte) {
	d.rxBuf = append(d.rxBuf, chunk...)
	if len(d.rxBuf) < headerSize {
		return
	}

	header := parseHeader(d.rxBuf)

	if d.current.Packet == packetReadToken {
		// A token response carries the assigned id in its own header.
		d.tokens[d.current.Name] = header.Token
		slog.Debug("token resolved", "name", d.current.Name, "token", fmt.Sprintf("0x%08X", header.Token))
	} else {
		payload, ok := extractPayload(d.rxBuf, header)
		if !ok {
			return // wait for more data
		}
		d.dispatch(header, payload)
	}

	slog.Debug("received packet",
		"flags", header.Flags,
		"type", header.PacketType,
		"block", header.Block,
		"token", header.Token,
		"size", header.Size,
		"mode", header.Mode,
	)

	// Command processed.
	d.current = Command{}
	d.rxBuf = nil
}

// dispatch routes a completed response by its stream token.
func (d *Device) dispatch(header ServerHeader, payload []byte) {
	switch header.Token {
	case d.tokenID("ModeList"):
		list := parseModeList(payload)
		d.mu.Lock()
		d.modeList = list
		d.mu.Unlock()
		slog.Info("received mode list", "modes", len(list), "names", strings.Join(list, ", "))

	case d.tokenID("ImageData"):
		d.handleImageData(payload)

	case d.tokenID("SystemState"):
		d.handleSystemState(payload)

	case d.tokenID("Start"):
		slog.Info("acquisition started")
		d.started = true
		if d.events.Started != nil {
			d.events.Started()
		}
		d.armPollTimer()

	case d.tokenID("Stop"):
		slog.Info("acquisition stopped")
		d.started = false
		if d.events.Stopped != nil {
			d.events.Stopped()
		}
		if d.stopSignal != nil {
			close(d.stopSignal)
			d.stopSignal = nil
		}
		d.queue.enqueue(readDataCommand("SystemState"))

	default:
		slog.Debug("response", "name", d.current.Name, "token", header.Token, "bytes", len(payload))
	}
}

// handleImageData appends an image slice and finalises the scan when the
// device has gone idle and the stream is terminated by IMAGE_END.
func (d *Device) handleImageData(payload []byte) {
	slog.Debug("received image data", "bytes", len(payload))
	d.imageData = append(d.imageData, payload...)
	if len(payload) > 32 { // only for large packets
		if d.events.NewData != nil {
			d.events.NewData()
		}
	}

	if d.State() == StateWaiting && d.wasScanning && len(d.imageData) >= 2 {
		lastWord, _ := readLE16(d.imageData[len(d.imageData)-2:])
		if lastWord == markerImageEnd {
			d.finishImage()
			d.wasScanning = false
			d.imageData = nil
		}
	}

	if d.started {
		d.armPollTimer() // enqueue next poll
	}
}

// handleSystemState decodes the state word and tracks the scan phase: a
// SCANNING sighting arms finalisation, a STOPPING transition after
// scanning flushes whatever image data arrived.
func (d *Device) handleSystemState(payload []byte) {
	if len(payload) != 4 {
		return
	}
	state, _ := readBE32(payload)
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
	slog.Info("system state", "state", state)

	switch {
	case state == StateScanning:
		d.wasScanning = true
	case state == StateStopping && d.wasScanning:
		d.finishImage()
		d.wasScanning = false
		d.imageData = nil
	}
}

// finishImage runs the assembler over the accumulated stream and emits
// the result.
func (d *Device) finishImage() {
	if len(d.imageData) == 0 {
		return
	}
	slog.Info("processing image data", "bytes", len(d.imageData))
	img := assembleImage(d.imageData)
	if img == nil {
		return
	}
	slog.Info("image assembled", "width", img.Width, "height", img.Height)
	if d.events.ImageReady != nil {
		d.events.ImageReady(img)
	}
}
