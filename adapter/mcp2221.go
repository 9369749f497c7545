package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/i2cemu"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// HID report commands.
const (
	cmdStatus          = 0x10
	cmdGetI2CData      = 0x40
	cmdReadGPIO        = 0x51
	cmdWriteData       = 0x90
	cmdReadData        = 0x91
	cmdReadDataRestart = 0x93
	cmdWriteDataNoStop = 0x94
	cmdGetSRAM         = 0xB0
	cmdSetSRAM         = 0xB1

	reportSize = 64
	// maxChunk is the payload one report can carry.
	maxChunk = reportSize - 4
)

var (
	_ i2cemu.I2CBus      = &MCP2221{}
	_ i2cemu.WriteReader = &MCP2221{}
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")

type MCP2221 struct {
	mx           sync.Mutex
	log          *slog.Logger
	dump         bool
	index        int
	request      []byte
	response     []byte
	responseWait time.Duration
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

type GPIODesignation byte

const (
	GPIOOperation GPIODesignation = 0b00000000
	// GPIO1 interrupt-on-change input, where the emulator INT# line is wired
	GPIO1InterruptDetection GPIODesignation = 0b00000100
)

const gpioModeMask = 0b00001000
const gpioOperationMask = 0b00000111

type MCP2221GPIOValues struct {
	GPIO0Mode  GPIOMode `yaml:"GP0_mode"`
	GPIO0Value byte     `yaml:"GPIO0"`
	GPIO1Mode  GPIOMode `yaml:"GP1_mode"`
	GPIO1Value byte     `yaml:"GPIO1"`
	GPIO2Mode  GPIOMode `yaml:"GP2_mode"`
	GPIO2Value byte     `yaml:"GPIO2"`
	GPIO3Mode  GPIOMode `yaml:"GP3_mode"`
	GPIO3Value byte     `yaml:"GPIO3"`
}

type MCP2221GPIOParameters struct {
	GPIO0Mode        GPIOMode        `yaml:"GP0_mode"`
	GPIO0Designation GPIODesignation `yaml:"GP0_designation"`
	GPIO1Mode        GPIOMode        `yaml:"GP1_mode"`
	GPIO1Designation GPIODesignation `yaml:"GP1_designation"`
	GPIO2Mode        GPIOMode        `yaml:"GP2_mode"`
	GPIO2Designation GPIODesignation `yaml:"GP2_designation"`
	GPIO3Mode        GPIOMode        `yaml:"GP3_mode"`
	GPIO3Designation GPIODesignation `yaml:"GP3_designation"`
}

type Opt func(*MCP2221)

func WithLogger(logger *slog.Logger) Opt {
	return func(d *MCP2221) {
		d.log = logger
	}
}

// WithDump logs every HID report exchanged with the adapter.
func WithDump(dump bool) Opt {
	return func(d *MCP2221) {
		d.dump = dump
	}
}

// WithIndex selects one of several connected adapters.
func WithIndex(index int) Opt {
	return func(d *MCP2221) {
		d.index = index
	}
}

func NewMCP2221(opts ...Opt) *MCP2221 {
	d := &MCP2221{
		log:          slog.Default(),
		index:        -1,
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.write(ctx, cmdWriteData, address, buffer); err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.read(ctx, cmdReadData, address, buffer); err != nil {
		return fmt.Errorf("bus read from %#x failed: %w", address, err)
	}
	return nil
}

// WriteReadAddr writes w without a stop and reads r after a repeated start.
func (d *MCP2221) WriteReadAddr(ctx context.Context, address byte, w []byte, r []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.write(ctx, cmdWriteDataNoStop, address, w); err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	if err := d.read(ctx, cmdReadDataRestart, address, r); err != nil {
		return fmt.Errorf("repeated start read from %#x failed: %w", address, err)
	}
	return nil
}

func (d *MCP2221) write(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if len(buffer) > maxChunk {
		return fmt.Errorf("%d bytes do not fit a single report", len(buffer))
	}
	d.resetBuffers()
	transferRequest(d.request, cmd, address<<1, buffer)
	if err := d.send(ctx, true); err != nil {
		return err
	}
	if d.response[1] == 0x01 {
		d.log.Debug("adapter busy")
		return i2cemu.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) read(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if len(buffer) > maxChunk {
		return fmt.Errorf("%d bytes do not fit a single report", len(buffer))
	}
	d.resetBuffers()
	transferRequest(d.request, cmd, address<<1|1, nil)
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	if err := d.send(ctx, true); err != nil {
		return err
	}
	if d.response[1] == 0x01 {
		return i2cemu.ErrBusBusy
	}
	resetBuffer(d.request)
	d.request[0] = cmdGetI2CData
	resetBuffer(d.response)
	if err := d.send(ctx, true); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	return readResponse(d.response, buffer)
}

// transferRequest frames an I2C transfer report: command, length
// little-endian, address byte as on the wire, then the payload.
func transferRequest(req []byte, cmd byte, wire byte, payload []byte) {
	req[0] = cmd
	binary.LittleEndian.PutUint16(req[1:3], uint16(len(payload)))
	req[3] = wire
	copy(req[4:], payload)
}

// readResponse copies the data of a get I2C data report into buffer.
func readResponse(resp []byte, buffer []byte) error {
	if resp[1] == 0x41 {
		return fmt.Errorf("i2c engine read failed: %w", i2cemu.ErrNack)
	}
	if resp[3] == 127 || int(resp[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), resp[3])
	}
	copy(buffer, resp[4:])
	return nil
}

func (d *MCP2221) SetGPIOParameters(ctx context.Context, params MCP2221GPIOParameters) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdSetSRAM
	d.request[1] = 0x01
	d.request[2] = byte(params.GPIO0Designation) | byte(params.GPIO0Mode)
	d.request[3] = byte(params.GPIO1Designation) | byte(params.GPIO1Mode)
	d.request[4] = byte(params.GPIO2Designation) | byte(params.GPIO2Mode)
	d.request[5] = byte(params.GPIO3Designation) | byte(params.GPIO3Mode)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set GP parameters command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return ErrCommandFailed
	}
	return nil
}

func (d *MCP2221) ReadGPIO(ctx context.Context) (MCP2221GPIOValues, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdReadGPIO
	err := d.send(ctx, true)
	if err != nil {
		return MCP2221GPIOValues{}, fmt.Errorf("read GPIO values command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return MCP2221GPIOValues{}, ErrCommandFailed
	}
	return gpioValues(d.response), nil
}

func gpioValues(resp []byte) MCP2221GPIOValues {
	mode := func(b byte) GPIOMode {
		if b == byte(GPIOModeNoOperation) {
			return GPIOModeNoOperation
		}
		return GPIOMode(b << 3)
	}
	return MCP2221GPIOValues{
		GPIO0Value: resp[2], GPIO0Mode: mode(resp[3]),
		GPIO1Value: resp[4], GPIO1Mode: mode(resp[5]),
		GPIO2Value: resp[6], GPIO2Mode: mode(resp[7]),
		GPIO3Value: resp[8], GPIO3Mode: mode(resp[9]),
	}
}

func (d *MCP2221) GetGPIOParameters(ctx context.Context) (MCP2221GPIOParameters, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetSRAM
	d.request[1] = 0x01
	err := d.send(ctx, true)
	if err != nil {
		return MCP2221GPIOParameters{}, fmt.Errorf("get GP parameters command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return MCP2221GPIOParameters{}, ErrCommandUnsupported
	}
	return MCP2221GPIOParameters{
		GPIO0Mode:        GPIOMode(d.response[4] & gpioModeMask),
		GPIO0Designation: GPIODesignation(d.response[4] & gpioOperationMask),
		GPIO1Mode:        GPIOMode(d.response[5] & gpioModeMask),
		GPIO1Designation: GPIODesignation(d.response[5] & gpioOperationMask),
		GPIO2Mode:        GPIOMode(d.response[6] & gpioModeMask),
		GPIO2Designation: GPIODesignation(d.response[6] & gpioOperationMask),
		GPIO3Mode:        GPIOMode(d.response[7] & gpioModeMask),
		GPIO3Designation: GPIODesignation(d.response[7] & gpioOperationMask),
	}, nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

// Release cancels a transfer the adapter is stuck in, e.g. after the
// emulator NACKed mid-transfer.
func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	_, err := d.releaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.releaseBus(ctx)
}

func (d *MCP2221) releaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = 0x10
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) open() (*hid.Device, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, fmt.Errorf("MCP2221 device not found")
	}
	idx := d.index
	if idx < 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification: %d adapters connected", len(devs))
		}
		idx = 0
	}
	if idx >= len(devs) {
		return nil, fmt.Errorf("no device with id %d", idx)
	}
	dev, err := devs[idx].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

func (d *MCP2221) send(ctx context.Context, response bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dev, err := d.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			d.log.Warn("could not close adapter", "err", err)
		}
	}()
	if d.dump {
		d.log.Debug("sending message to adapter", "report", hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.responseWait):
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if d.dump {
		d.log.Debug("read message from adapter", "report", hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}
