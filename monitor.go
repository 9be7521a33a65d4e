package heartbeat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fako1024/gatt"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

const (
	heartRateService                   = "180d"
	heartRateMeasurementCharacteristic = "2a37"
	bodySensorLocationCharacteristic   = "2a38"

	deviceInfoService                   = "180a"
	deviceManufacturerCharacteristic    = "2a29"
	deviceModelNumberCharacteristic     = "2a24"
	deviceFirmwareVersionCharacteristic = "2a26"
	deviceSoftwareVersionCharacteristic = "2a28"

	batteryService             = "180f"
	batteryLevelCharacteristic = "2a19"
)

// ErrNotConnected denotes an operation that requires a connected sensor
var ErrNotConnected = errors.New("device not connected")

// Monitor denotes a Bluetooth LE heart rate sensor (heart rate service 0x180D)
type Monitor struct {
	mu sync.Mutex

	connectionStatus ConnectionStatus
	batteryLevel     *atomic.Int32
	sensorLocation   SensorLocation
	lastMeasurement  *Measurement

	deviceID   string
	deviceName string

	deviceInfo DeviceInfo

	stateChangeHandler func(status ConnectionStatus)
	stateChangeChan    chan ConnectionStatus

	handlers      map[uint64]Handler
	nextHandlerID uint64

	doneChan    chan struct{}
	releaseChan chan struct{}
	closeOnce   sync.Once

	btDevice gatt.Device

	logger Logger
}

// New instantiates a new Monitor, executing functional options, if any
func New(options ...func(*Monitor)) (*Monitor, error) {

	// Initialize a new instance of a Monitor
	f := newMonitor()

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(f)
	}

	// Initialize a new GATT device (if not provided as option)
	if f.btDevice == nil {
		btDevice, err := gatt.NewDevice(defaultBTClientOptions...)
		if err != nil {
			return nil, err
		}
		f.btDevice = btDevice
	}

	return f, f.subscribe()
}

func newMonitor() *Monitor {
	return &Monitor{
		batteryLevel: atomic.NewInt32(-1),
		handlers:     make(map[uint64]Handler),
		doneChan:     make(chan struct{}),
		logger:       &NullLogger{},
	}
}

// ConnectionStatus returns the current status of the bluetooth device
func (f *Monitor) ConnectionStatus() ConnectionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connectionStatus
}

// DeviceInfo returns the set of immutable information about the sensor
func (f *Monitor) DeviceInfo() DeviceInfo {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.deviceInfo
}

// SensorLocation returns the body location of the sensor, as reported by the sensor
func (f *Monitor) SensorLocation() SensorLocation {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sensorLocation
}

// BatteryLevel returns the current battery level in percent (-1 if unknown)
func (f *Monitor) BatteryLevel() int {
	return int(f.batteryLevel.Load())
}

// SetStateChangeHandler defines a handler function that is called upon state change
func (f *Monitor) SetStateChangeHandler(fn func(status ConnectionStatus)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stateChangeHandler = fn
}

// SetStateChangeChannel defines a channel that receives state changes (non-blocking)
func (f *Monitor) SetStateChangeChannel(ch chan ConnectionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stateChangeChan = ch
}

// Subscribe registers a handler that is called for every heart rate notification
func (f *Monitor) Subscribe(fn Handler) (Subscription, error) {
	if fn == nil {
		return nil, errors.New("cannot subscribe nil handler")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextHandlerID
	f.nextHandlerID++
	f.handlers[id] = fn

	return &monitorSubscription{monitor: f, id: id}, nil
}

// LastMeasurement returns the most recent measurement received from the sensor
func (f *Monitor) LastMeasurement() (*Measurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connectionStatus.State != StateConnected {
		return nil, fmt.Errorf("%w (current status: %#v)", ErrNotConnected, f.connectionStatus)
	}
	if f.lastMeasurement == nil {
		return nil, errors.New("no measurement received yet")
	}

	m := *f.lastMeasurement
	return &m, nil
}

// Close terminates the connection to the device
func (f *Monitor) Close() (err error) {
	f.closeOnce.Do(func() {
		close(f.doneChan)

		err = multierr.Combine(
			f.btDevice.StopScanning(),
			f.btDevice.RemoveAllServices(),
		)
	})
	return
}

////////////////////////////////////////////////////////////////////////////////

type monitorSubscription struct {
	monitor *Monitor
	id      uint64
}

func (s *monitorSubscription) Unsubscribe() error {
	s.monitor.mu.Lock()
	defer s.monitor.mu.Unlock()

	delete(s.monitor.handlers, s.id)
	return nil
}

func (f *Monitor) subscribe() error {

	// Register handlers
	f.btDevice.Handle(
		gatt.AddPeripheralDiscovered(f.genOnPeriphDiscovered()),
		gatt.AddPeripheralConnected(f.onPeriphConnected),
		gatt.AddPeripheralDisconnected(f.onPeriphDisconnected),
	)

	// Initialize the device
	return f.btDevice.Init(f.onStateChanged)
}

func (f *Monitor) setStatus(state State, err error) {
	f.mu.Lock()
	f.connectionStatus = ConnectionStatus{
		State: state,
		Error: err,
	}
	status, handler, ch := f.connectionStatus, f.stateChangeHandler, f.stateChangeChan
	f.mu.Unlock()

	// Call handler function, if any
	if handler != nil {
		handler(status)
	}

	// Put state change on channel, if any
	if ch != nil {
		select {
		case ch <- status:
		default:
		}
	}
}

func (f *Monitor) dispatch(m Measurement, err error) {
	f.mu.Lock()
	if err == nil {
		f.lastMeasurement = &m
	}
	handlers := make([]Handler, 0, len(f.handlers))
	for _, fn := range f.handlers {
		handlers = append(handlers, fn)
	}
	f.mu.Unlock()

	for _, fn := range handlers {
		fn(m, err)
	}
}

////////////////////////////////////////////////////////////////////////////////

func (f *Monitor) onStateChanged(d gatt.Device, s gatt.State) {
	switch s {
	case gatt.StatePoweredOn:
		f.setStatus(StateScanning, nil)
		if err := d.Scan([]gatt.UUID{gatt.MustParseUUID(heartRateService)}, false); err != nil {
			f.logger.Warnf("failed to enable initial scanning: %s", err)
		}
		return
	case gatt.StatePoweredOff:
		f.setStatus(StateDisconnected, nil)
		return
	default:
		if err := d.StopScanning(); err != nil {
			f.logger.Warnf("failed to stop initial scanning: %s", err)
		}
	}
}

func (f *Monitor) genOnPeriphDiscovered() func(p gatt.Peripheral, arg2 *gatt.Advertisement, arg3 int) {
	return func(p gatt.Peripheral, arg2 *gatt.Advertisement, arg3 int) {

		f.logger.Debugf("discovered device `%s/%s`", p.Name(), p.ID())

		// Check if name and / or device ID have been overridden
		if !f.thisDevice(p) {
			return
		}

		f.logger.Debugf("connecting device `%s/%s`", p.Name(), p.ID())

		// Stop scanning once we've got the peripheral we're looking for.
		if err := p.Device().StopScanning(); err != nil {
			f.logger.Warnf("failed to stop initial scanning: %s", err)
		}
		if err := p.Device().Connect(p); err != nil {
			f.logger.Errorf("failed to connect device `%s/%s`: %s", p.Name(), p.ID(), err)
			return
		}

		f.logger.Debugf("connected device `%s/%s`", p.Name(), p.ID())
	}
}

func (f *Monitor) onPeriphConnected(p gatt.Peripheral, connErr error) {

	if !f.thisDevice(p) {
		return
	}

	if connErr != nil {
		f.logger.Errorf("failed to connect peripheral `%s/%s`: %s", p.Name(), p.ID(), connErr)
		f.setStatus(StateDisconnected, connErr)
		return
	}

	f.logger.Debugf("connected peripheral `%s/%s`", p.Name(), p.ID())

	release := f.acquire()
	f.setStatus(StateConnected, nil)
	defer func() {
		if err := p.Device().CancelConnection(p); err != nil {
			f.logger.Warnf("failed to cancel connection to peripheral `%s/%s`: %s", p.Name(), p.ID(), err)
		}
		f.setStatus(StateDisconnected, connErr)
	}()

	// Discover services
	ss, err := p.DiscoverServices([]gatt.UUID{
		gatt.MustParseUUID(heartRateService),
		gatt.MustParseUUID(deviceInfoService),
		gatt.MustParseUUID(batteryService),
	})
	if err != nil {
		connErr = fmt.Errorf("failed to discover services: %w", err)
		return
	}

	// Device information and battery are optional, only the heart rate service is mandatory
	heartRateEnabled := false
	for _, s := range ss {
		switch s.UUID().String() {
		case deviceInfoService:
			if err := f.setupDeviceInfo(p, s); err != nil {
				f.logger.Warnf("skipping device information service: %s", err)
			}
		case batteryService:
			if err := f.setupBattery(p, s); err != nil {
				f.logger.Warnf("skipping battery service: %s", err)
			}
		case heartRateService:
			if err := f.setupHeartRate(p, s); err != nil {
				connErr = err
				return
			}
			heartRateEnabled = true
		}
	}
	if !heartRateEnabled {
		connErr = fmt.Errorf("peripheral `%s/%s` does not provide the heart rate service", p.Name(), p.ID())
		return
	}

	f.logger.Debugf("waiting to release peripheral `%s/%s`", p.Name(), p.ID())
	select {
	case <-f.doneChan:
	case <-release:
	}
	f.logger.Debugf("released peripheral `%s/%s`", p.Name(), p.ID())
}

func (f *Monitor) setupDeviceInfo(p gatt.Peripheral, s *gatt.Service) error {

	// Discover characteristics
	cs, err := p.DiscoverCharacteristics([]gatt.UUID{
		gatt.MustParseUUID(deviceManufacturerCharacteristic),
		gatt.MustParseUUID(deviceModelNumberCharacteristic),
		gatt.MustParseUUID(deviceSoftwareVersionCharacteristic),
		gatt.MustParseUUID(deviceFirmwareVersionCharacteristic),
	}, s)
	if err != nil {
		return fmt.Errorf("failed to discover device info characteristics: %w", err)
	}

	var info DeviceInfo
	for _, c := range cs {
		var target *string
		switch c.UUID().String() {
		case deviceManufacturerCharacteristic:
			target = &info.Manufacturer
		case deviceModelNumberCharacteristic:
			target = &info.Model
		case deviceSoftwareVersionCharacteristic:
			target = &info.SoftwareVersion
		case deviceFirmwareVersionCharacteristic:
			target = &info.FirmwareVersion
		default:
			continue
		}

		rawData, err := readCharacteristic(p, c, -1)
		if err != nil {
			f.logger.Warnf("failed to read device info characteristic %s: %s", c.UUID(), err)
			continue
		}
		*target = strings.TrimRight(string(rawData), "\x00")
	}

	f.mu.Lock()
	f.deviceInfo = info
	f.mu.Unlock()

	return nil
}

func (f *Monitor) setupBattery(p gatt.Peripheral, s *gatt.Service) error {

	// Discover characteristics
	cs, err := p.DiscoverCharacteristics([]gatt.UUID{
		gatt.MustParseUUID(batteryLevelCharacteristic),
	}, s)
	if err != nil {
		return fmt.Errorf("failed to discover battery characteristics: %w", err)
	}

	for _, c := range cs {
		if c.UUID().String() != batteryLevelCharacteristic {
			continue
		}

		rawData, err := readCharacteristic(p, c, 1)
		if err != nil {
			return fmt.Errorf("failed to read battery level: %w", err)
		}
		f.batteryLevel.Store(int32(rawData[0]))

		// Battery level notifications are optional
		if c.Properties()&gatt.CharNotify == 0 {
			continue
		}
		if err := p.SetNotifyValue(c, f.receiveBatteryLevel); err != nil {
			return fmt.Errorf("failed to subscribe to battery level characteristic: %w", err)
		}
	}

	return nil
}

func (f *Monitor) setupHeartRate(p gatt.Peripheral, s *gatt.Service) error {

	// Discover characteristics
	cs, err := p.DiscoverCharacteristics([]gatt.UUID{
		gatt.MustParseUUID(heartRateMeasurementCharacteristic),
		gatt.MustParseUUID(bodySensorLocationCharacteristic),
	}, s)
	if err != nil {
		return fmt.Errorf("failed to discover heart rate characteristics: %w", err)
	}

	measurementEnabled := false
	for _, c := range cs {
		switch c.UUID().String() {
		case bodySensorLocationCharacteristic:
			rawData, err := readCharacteristic(p, c, 1)
			if err != nil {
				f.logger.Warnf("failed to read body sensor location: %s", err)
				continue
			}
			f.mu.Lock()
			f.sensorLocation = SensorLocation(rawData[0])
			f.mu.Unlock()

		case heartRateMeasurementCharacteristic:

			// Discover descriptors (required to enable notifications)
			if _, err := p.DiscoverDescriptors(nil, c); err != nil {
				return fmt.Errorf("failed to discover heart rate measurement descriptors: %w", err)
			}
			if err := p.SetNotifyValue(c, f.receiveMeasurement); err != nil {
				return fmt.Errorf("failed to subscribe to heart rate measurement characteristic: %w", err)
			}
			measurementEnabled = true
		}
	}

	if !measurementEnabled {
		return fmt.Errorf("heart rate service does not provide the measurement characteristic %s", heartRateMeasurementCharacteristic)
	}

	return nil
}

func (f *Monitor) onPeriphDisconnected(p gatt.Peripheral, err error) {

	if !f.thisDevice(p) {
		return
	}

	f.disconnect()
	f.logger.Debugf("disconnected peripheral `%s/%s`", p.Name(), p.ID())

	// Do not resume scanning after Close()
	if f.closed() {
		return
	}

	time.Sleep(100 * time.Millisecond)
	f.setStatus(StateScanning, nil)
	if err := f.btDevice.Scan([]gatt.UUID{gatt.MustParseUUID(heartRateService)}, false); err != nil {
		f.logger.Warnf("failed to re-enable scanning after disconnect: %s", err)
	}
}

func (f *Monitor) thisDevice(p gatt.Peripheral) bool {
	return f.matches(p.ID(), p.Name())
}

func (f *Monitor) matches(id, name string) bool {

	// Without any overrides, every peripheral advertising the heart rate service qualifies
	if f.deviceID == "" && f.deviceName == "" {
		return true
	}
	if f.deviceID != "" && strings.EqualFold(id, f.deviceID) {
		return true
	}

	return f.deviceName != "" && strings.EqualFold(name, f.deviceName)
}

// acquire sets up the release channel of a new connection
func (f *Monitor) acquire() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.releaseChan = make(chan struct{})
	return f.releaseChan
}

func (f *Monitor) disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.releaseChan != nil {
		close(f.releaseChan)
		f.releaseChan = nil
	}
}

func (f *Monitor) closed() bool {
	select {
	case <-f.doneChan:
		return true
	default:
		return false
	}
}

func (f *Monitor) receiveBatteryLevel(c *gatt.Characteristic, req []byte, err error) {
	if err != nil || len(req) != 1 {
		return
	}

	f.batteryLevel.Store(int32(req[0]))
}

func (f *Monitor) receiveMeasurement(c *gatt.Characteristic, req []byte, err error) {
	if err != nil {
		f.logger.Warnf("failed to receive heart rate notification: %s", err)
		f.dispatch(Measurement{}, fmt.Errorf("failed to receive heart rate notification: %w", err))
		return
	}

	reading, err := Decode(req)
	if err != nil {
		f.logger.Warnf("discarding malformed heart rate notification (% x): %s", req, err)
		f.dispatch(Measurement{}, err)
		return
	}

	f.logger.Debugf("received heart rate measurement: %s", reading)
	f.dispatch(Measurement{
		TimeStamp: time.Now(),
		Reading:   *reading,
	}, nil)
}

////////////////////////////////////////////////////////////////////////////////

func readCharacteristic(p gatt.Peripheral, c *gatt.Characteristic, expectedLen int) ([]byte, error) {
	// Discover descriptors
	_, err := p.DiscoverDescriptors(nil, c)
	if err != nil {
		return nil, fmt.Errorf("failed to discover descriptors: %w", err)
	}

	rawData, err := p.ReadLongCharacteristic(c)
	if err != nil || (expectedLen >= 0 && len(rawData) != expectedLen) {
		return nil, fmt.Errorf("failed to read characteristic data: %v (data len: %d)", err, len(rawData))
	}

	return rawData, nil
}
