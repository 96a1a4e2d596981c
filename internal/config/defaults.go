package config

const (
	defaultExtractDir          = "~/.local/share/dockd/extracted"
	defaultMountPoint          = "/mnt/wearable"
	defaultLogDir              = "~/.local/share/dockd/logs"
	defaultFirmwareDir         = "~/.local/share/dockd/firmware"
	defaultVendorID            = "0001"
	defaultProductID           = "0001"
	defaultBlockWaitTimeout    = 60
	defaultBlockPollIntervalMS = 250
	defaultDFUBinary           = "dfu-util"
	defaultDFUAltSetting       = 1
	defaultDFUTransferSize     = 1024
	defaultMountHelper         = "lfs"
	defaultMarkerTimeout       = 5
	defaultUnmountTimeout      = 5
	defaultUmountBinary        = "umount"
	defaultBrokerHost          = "localhost"
	defaultBrokerPort          = 1883
	defaultBrokerTopic         = "BORUS/extf"
	defaultPublishDelayMS      = 1
	defaultConnectTimeout      = 10
	defaultLogFileName         = "imu_log.bin"
	defaultLogsSubdir          = "logs"
	defaultRecordFormat        = "auto"
	defaultQuiescenceWindowMS  = 500
	defaultEventTickIntervalMS = 1000
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultNtfyRequestTimeout  = 10
)

// defaultMountHelperArgs matches the LittleFS geometry of the wearable's
// external flash.
var defaultMountHelperArgs = []string{
	"--block_count=1760",
	"--block_size=4096",
	"--read_size=16",
	"--prog_size=16",
	"--cache_size=64",
	"--lookahead_size=32",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ExtractDir: defaultExtractDir,
			MountPoint: defaultMountPoint,
			LogDir:     defaultLogDir,
		},
		Device: Device{
			VendorID:            defaultVendorID,
			ProductID:           defaultProductID,
			BlockWaitTimeout:    defaultBlockWaitTimeout,
			BlockPollIntervalMS: defaultBlockPollIntervalMS,
		},
		Firmware: Firmware{
			Dir:          defaultFirmwareDir,
			DFUBinary:    defaultDFUBinary,
			AltSetting:   defaultDFUAltSetting,
			TransferSize: defaultDFUTransferSize,
		},
		Mount: Mount{
			HelperBinary:   defaultMountHelper,
			HelperArgs:     append([]string(nil), defaultMountHelperArgs...),
			MarkerTimeout:  defaultMarkerTimeout,
			UnmountTimeout: defaultUnmountTimeout,
			UmountBinary:   defaultUmountBinary,
		},
		Broker: Broker{
			Host:           defaultBrokerHost,
			Port:           defaultBrokerPort,
			Topic:          defaultBrokerTopic,
			PublishDelayMS: defaultPublishDelayMS,
			ConnectTimeout: defaultConnectTimeout,
		},
		Decode: Decode{
			LogFileName:  defaultLogFileName,
			LogsSubdir:   defaultLogsSubdir,
			RecordFormat: defaultRecordFormat,
		},
		Workflow: Workflow{
			QuiescenceWindowMS:  defaultQuiescenceWindowMS,
			EventTickIntervalMS: defaultEventTickIntervalMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			Sessions:       true,
			Firmware:       true,
			Errors:         true,
		},
	}
}
