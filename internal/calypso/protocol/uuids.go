package protocol

// LocalName is the name the anemometer advertises.
const LocalName = "ULTRASONIC"

// Device information characteristics (Bluetooth SIG assigned numbers).
const (
	ManufacturerNameUUID = "00002a29-0000-1000-8000-00805f9b34fb"
	ModelNumberUUID      = "00002a24-0000-1000-8000-00805f9b34fb"
	SerialNumberUUID     = "00002a25-0000-1000-8000-00805f9b34fb"
	HardwareRevisionUUID = "00002a27-0000-1000-8000-00805f9b34fb"
	FirmwareRevisionUUID = "00002a26-0000-1000-8000-00805f9b34fb"
	SoftwareRevisionUUID = "00002a28-0000-1000-8000-00805f9b34fb"
)

// Vendor status characteristics. Each holds a single byte.
const (
	ModeUUID     = "0000a001-0000-1000-8000-00805f9b34fb"
	DataRateUUID = "0000a002-0000-1000-8000-00805f9b34fb"
	CompassUUID  = "0000a003-0000-1000-8000-00805f9b34fb"
)

// DataUUID is the reading characteristic. It supports read and notify.
const DataUUID = "00002a39-0000-1000-8000-00805f9b34fb"
