package conf

import (
	"fmt"

	"XCam/internal/utils"

	"gopkg.in/ini.v1"
)

const CONFIG_FILE = "xcam.ini"

// General
type GeneralConf struct {
	ReadTimeoutRaw  string   `ini:"readTimeout"`
	WriteTimeoutRaw string   `ini:"writeTimeout"`
	ReadTimeout     Duration `ini:"-" json:"-"` // filled by Check()
	WriteTimeout    Duration `ini:"-" json:"-"` // filled by Check()
}

// Log
type LogConf struct {
	LogMaxSize   int  `ini:"logMaxSize"`
	LogMaxBackup int  `ini:"logMaxBackup"`
	LogQueueSize int  `ini:"logQueueSize"`
	LogDebug     bool `ini:"logDebug"`
}

// Rtsp
type RtspConf struct {
	Rtsp         bool   `ini:"rtsp"`
	RtspPort     int    `ini:"rtspPort"`
	StreamPath   string `ini:"streamPath"`
	AuthEnabled  bool   `ini:"authEnabled"`
	AuthUser     string `ini:"authUser"`
	AuthPassword string `ini:"authPassword"`
	RtpPortLow   int    `ini:"rtpPortLow"`
	RtpPortHigh  int    `ini:"rtpPortHigh"`
}

// Video
type VideoConf struct {
	Width   int `ini:"width"`
	Height  int `ini:"height"`
	FPS     int `ini:"fps"`
	Bitrate int `ini:"bitrate"`
	GopSize int `ini:"gopSize"`
}

// Audio
type AudioConf struct {
	Audio      bool   `ini:"audio"`
	SampleRate int    `ini:"sampleRate"`
	Channels   int    `ini:"channels"`
	CodecRaw   string `ini:"codec"`

	Codec AudioCodec `ini:"-" json:"-"` // filled by Check()
}

type Config struct {
	Ini *ini.File `ini:"-" json:"-"`

	// General
	General GeneralConf `ini:"general"`

	// Log
	Log LogConf `ini:"log"`

	// Rtsp
	Rtsp RtspConf `ini:"rtsp"`

	// Video
	Video VideoConf `ini:"video"`

	// Audio
	Audio AudioConf `ini:"audio"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		General: GeneralConf{
			ReadTimeoutRaw:  "10s",
			WriteTimeoutRaw: "10s",
		},
		Log: LogConf{
			LogMaxSize:   100,
			LogMaxBackup: 5,
			LogQueueSize: 1000,
		},
		Rtsp: RtspConf{
			Rtsp:        true,
			RtspPort:    554,
			StreamPath:  "/stream",
			RtpPortLow:  8000,
			RtpPortHigh: 8999,
		},
		Video: VideoConf{
			Width:   1280,
			Height:  720,
			FPS:     25,
			Bitrate: 1500,
			GopSize: 50,
		},
		Audio: AudioConf{
			Audio:      false,
			SampleRate: 8000,
			Channels:   1,
			CodecRaw:   string(AudioCodecALaw),
		},
	}
	if err := cfg.Check(); err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) Check() error {
	err := c.General.ReadTimeout.Marshal(c.General.ReadTimeoutRaw)
	if err != nil {
		return err
	}

	err = c.General.WriteTimeout.Marshal(c.General.WriteTimeoutRaw)
	if err != nil {
		return err
	}

	err = c.Audio.Codec.Marshal(c.Audio.CodecRaw)
	if err != nil {
		return err
	}

	if c.Rtsp.RtspPort <= 0 || c.Rtsp.RtspPort > 65535 {
		return fmt.Errorf("invalid rtspPort: %d", c.Rtsp.RtspPort)
	}
	if len(c.Rtsp.StreamPath) == 0 || c.Rtsp.StreamPath[0] != '/' {
		return fmt.Errorf("streamPath must begin with a slash: %q", c.Rtsp.StreamPath)
	}
	if c.Rtsp.AuthEnabled && c.Rtsp.AuthUser == "" {
		return fmt.Errorf("authEnabled requires authUser")
	}
	if c.Rtsp.RtpPortLow <= 0 || c.Rtsp.RtpPortHigh <= c.Rtsp.RtpPortLow {
		return fmt.Errorf("invalid RTP port range: %d-%d", c.Rtsp.RtpPortLow, c.Rtsp.RtpPortHigh)
	}
	if c.Video.FPS <= 0 {
		return fmt.Errorf("invalid video fps: %d", c.Video.FPS)
	}
	if c.Audio.Audio && c.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid audio sampleRate: %d", c.Audio.SampleRate)
	}

	return nil
}

func Load(file string) (cfg *Config, err error) {
	iFile := utils.FileTotalPath(file)
	if !utils.Exist(iFile) {
		return Default(), nil
	}
	cfg = Default()
	cfg.Ini, err = ini.Load(iFile)
	if err != nil {
		return nil, fmt.Errorf("Config.Load %s error:%v", file, err)
	}
	cfg.Ini.NameMapper = nil
	err = cfg.Ini.MapTo(cfg)
	if err != nil {
		return nil, fmt.Errorf("Config.Load %s error:%v", file, err)
	}
	err = cfg.Check()
	if err != nil {
		return nil, fmt.Errorf("Config.Load %s error:%v", file, err)
	}

	return cfg, nil
}
