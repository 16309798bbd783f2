package config

const (
	defaultDataDir            = "~/.local/share/memebox"
	defaultAssetsSubdir       = "memes"
	defaultCatalogueName      = "memes.json"
	defaultStateSubdir        = "state"
	defaultPollTimeout        = 30
	defaultIngestTimeout      = 300
	defaultInlineCacheSeconds = 10
	defaultMenuPageSize       = 20
	defaultListen             = ":8080"
	defaultAssetPrefix        = "/memes/"
	defaultBitrate            = "32k"
	defaultSampleRate         = 48000
	defaultChannels           = 1
	defaultTranscodeTimeout   = 120
	defaultMaxParallel        = 2
	defaultNotifyTimeout      = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults. Directory
// fields left empty are derived from data_dir during normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Bot: Bot{
			PollTimeout:        defaultPollTimeout,
			IngestTimeout:      defaultIngestTimeout,
			InlineCacheSeconds: defaultInlineCacheSeconds,
			MenuPageSize:       defaultMenuPageSize,
		},
		Server: Server{
			Listen:      defaultListen,
			AssetPrefix: defaultAssetPrefix,
		},
		Transcode: Transcode{
			FFmpegBinary:   "ffmpeg",
			Bitrate:        defaultBitrate,
			SampleRate:     defaultSampleRate,
			Channels:       defaultChannels,
			TimeoutSeconds: defaultTranscodeTimeout,
			MaxParallel:    defaultMaxParallel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Ingestion:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
