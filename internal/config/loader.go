package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/ini.v1"
)

// LoadFromINI loads configuration from an agent.ini file. Missing keys keep
// their defaults.
func LoadFromINI(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := NewDefaultConfig()
	def := NewDefaultConfig()

	// Capture
	section := file.Section("Capture")
	config.Capture.MaxFPS = section.Key("MaxFPS").MustFloat64(def.Capture.MaxFPS)
	config.Capture.ChangeDetection = section.Key("ChangeDetection").MustBool(def.Capture.ChangeDetection)
	config.Capture.ChangeThreshold = section.Key("ChangeThreshold").MustFloat64(def.Capture.ChangeThreshold)
	config.Capture.TickInterval = section.Key("TickInterval").MustDuration(def.Capture.TickInterval)

	// Window
	section = file.Section("Window")
	config.Window.PollInterval = section.Key("PollInterval").MustDuration(def.Window.PollInterval)
	config.Window.CaptureOnFocus = section.Key("CaptureOnFocus").MustBool(def.Window.CaptureOnFocus)

	// OCR
	section = file.Section("OCR")
	config.OCR.Mode = section.Key("Mode").MustString(def.OCR.Mode)
	config.OCR.Primary = section.Key("Primary").MustString(def.OCR.Primary)
	config.OCR.Language = section.Key("Language").MustString(def.OCR.Language)
	config.OCR.ConfidenceThreshold = section.Key("ConfidenceThreshold").MustFloat64(def.OCR.ConfidenceThreshold)
	config.OCR.Preprocessing = section.Key("Preprocessing").MustBool(def.OCR.Preprocessing)
	config.OCR.Tesseract = section.Key("Tesseract").MustBool(def.OCR.Tesseract)
	config.OCR.Multimodal = section.Key("Multimodal").MustBool(def.OCR.Multimodal)
	config.OCR.Model = section.Key("Model").MustString(def.OCR.Model)

	// Classifier
	section = file.Section("Classifier")
	config.Classifier.Engine = section.Key("Engine").MustString(def.Classifier.Engine)
	config.Classifier.Model = section.Key("Model").MustString(def.Classifier.Model)
	config.Classifier.LexiconPath = section.Key("LexiconPath").MustString(def.Classifier.LexiconPath)
	config.Classifier.Temperature = section.Key("Temperature").MustFloat64(def.Classifier.Temperature)
	config.Classifier.MaxTextLen = section.Key("MaxTextLen").MustInt(def.Classifier.MaxTextLen)
	config.Classifier.MaxDistraction = section.Key("MaxDistraction").MustInt(def.Classifier.MaxDistraction)
	config.Classifier.MinProductiveRatio = section.Key("MinProductiveRatio").MustFloat64(def.Classifier.MinProductiveRatio)

	// Pipeline
	section = file.Section("Pipeline")
	config.Pipeline.Workers = section.Key("Workers").MustInt(def.Pipeline.Workers)
	config.Pipeline.QueueSize = section.Key("QueueSize").MustInt(def.Pipeline.QueueSize)
	config.Pipeline.FrameInterval = section.Key("FrameInterval").MustInt(def.Pipeline.FrameInterval)
	config.Pipeline.MinAlnumRatio = section.Key("MinAlnumRatio").MustFloat64(def.Pipeline.MinAlnumRatio)
	config.Pipeline.HistorySize = section.Key("HistorySize").MustInt(def.Pipeline.HistorySize)
	config.Pipeline.StoreCaptures = section.Key("StoreCaptures").MustBool(def.Pipeline.StoreCaptures)
	config.Pipeline.StallTimeout = section.Key("StallTimeout").MustDuration(def.Pipeline.StallTimeout)
	config.Pipeline.StopTimeout = section.Key("StopTimeout").MustDuration(def.Pipeline.StopTimeout)

	// Storage
	section = file.Section("Storage")
	config.Storage.Path = section.Key("Path").MustString(def.Storage.Path)
	config.Storage.Thumbnails = section.Key("Thumbnails").MustBool(def.Storage.Thumbnails)
	config.Storage.ThumbnailWidth = section.Key("ThumbnailWidth").MustInt(def.Storage.ThumbnailWidth)
	config.Storage.StoreText = section.Key("StoreText").MustBool(def.Storage.StoreText)
	config.Storage.RetentionDays = section.Key("RetentionDays").MustInt(def.Storage.RetentionDays)

	// Model server
	section = file.Section("Model")
	config.Model.URL = section.Key("URL").MustString(def.Model.URL)
	config.Model.Timeout = section.Key("Timeout").MustDuration(def.Model.Timeout)
	config.Model.RateLimit = section.Key("RateLimit").MustFloat64(def.Model.RateLimit)
	config.Model.MaxRetries = section.Key("MaxRetries").MustInt(def.Model.MaxRetries)

	// Logging
	section = file.Section("Logging")
	config.Logging.Level = section.Key("Level").MustString(def.Logging.Level)
	config.Logging.Dir = section.Key("Dir").MustString(def.Logging.Dir)
	config.Logging.EventLog = section.Key("EventLog").MustBool(def.Logging.EventLog)

	// Metrics
	section = file.Section("Metrics")
	config.Metrics.Enabled = section.Key("Enabled").MustBool(def.Metrics.Enabled)
	config.Metrics.Address = section.Key("Address").MustString(def.Metrics.Address)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// LoadOrDefault loads path, or returns the defaults when the file does not
// exist
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewDefaultConfig(), nil
	}
	return LoadFromINI(path)
}

// SaveToINI saves configuration to an INI file
func SaveToINI(config *Config, path string) error {
	file := ini.Empty()

	section := file.Section("Capture")
	section.Key("MaxFPS").SetValue(formatFloat(config.Capture.MaxFPS))
	section.Key("ChangeDetection").SetValue(strconv.FormatBool(config.Capture.ChangeDetection))
	section.Key("ChangeThreshold").SetValue(formatFloat(config.Capture.ChangeThreshold))
	section.Key("TickInterval").SetValue(config.Capture.TickInterval.String())

	section = file.Section("Window")
	section.Key("PollInterval").SetValue(config.Window.PollInterval.String())
	section.Key("CaptureOnFocus").SetValue(strconv.FormatBool(config.Window.CaptureOnFocus))

	section = file.Section("OCR")
	section.Key("Mode").SetValue(config.OCR.Mode)
	section.Key("Primary").SetValue(config.OCR.Primary)
	section.Key("Language").SetValue(config.OCR.Language)
	section.Key("ConfidenceThreshold").SetValue(formatFloat(config.OCR.ConfidenceThreshold))
	section.Key("Preprocessing").SetValue(strconv.FormatBool(config.OCR.Preprocessing))
	section.Key("Tesseract").SetValue(strconv.FormatBool(config.OCR.Tesseract))
	section.Key("Multimodal").SetValue(strconv.FormatBool(config.OCR.Multimodal))
	section.Key("Model").SetValue(config.OCR.Model)

	section = file.Section("Classifier")
	section.Key("Engine").SetValue(config.Classifier.Engine)
	section.Key("Model").SetValue(config.Classifier.Model)
	section.Key("LexiconPath").SetValue(config.Classifier.LexiconPath)
	section.Key("Temperature").SetValue(formatFloat(config.Classifier.Temperature))
	section.Key("MaxTextLen").SetValue(strconv.Itoa(config.Classifier.MaxTextLen))
	section.Key("MaxDistraction").SetValue(strconv.Itoa(config.Classifier.MaxDistraction))
	section.Key("MinProductiveRatio").SetValue(formatFloat(config.Classifier.MinProductiveRatio))

	section = file.Section("Pipeline")
	section.Key("Workers").SetValue(strconv.Itoa(config.Pipeline.Workers))
	section.Key("QueueSize").SetValue(strconv.Itoa(config.Pipeline.QueueSize))
	section.Key("FrameInterval").SetValue(strconv.Itoa(config.Pipeline.FrameInterval))
	section.Key("MinAlnumRatio").SetValue(formatFloat(config.Pipeline.MinAlnumRatio))
	section.Key("HistorySize").SetValue(strconv.Itoa(config.Pipeline.HistorySize))
	section.Key("StoreCaptures").SetValue(strconv.FormatBool(config.Pipeline.StoreCaptures))
	section.Key("StallTimeout").SetValue(config.Pipeline.StallTimeout.String())
	section.Key("StopTimeout").SetValue(config.Pipeline.StopTimeout.String())

	section = file.Section("Storage")
	section.Key("Path").SetValue(config.Storage.Path)
	section.Key("Thumbnails").SetValue(strconv.FormatBool(config.Storage.Thumbnails))
	section.Key("ThumbnailWidth").SetValue(strconv.Itoa(config.Storage.ThumbnailWidth))
	section.Key("StoreText").SetValue(strconv.FormatBool(config.Storage.StoreText))
	section.Key("RetentionDays").SetValue(strconv.Itoa(config.Storage.RetentionDays))

	section = file.Section("Model")
	section.Key("URL").SetValue(config.Model.URL)
	section.Key("Timeout").SetValue(config.Model.Timeout.String())
	section.Key("RateLimit").SetValue(formatFloat(config.Model.RateLimit))
	section.Key("MaxRetries").SetValue(strconv.Itoa(config.Model.MaxRetries))

	section = file.Section("Logging")
	section.Key("Level").SetValue(config.Logging.Level)
	section.Key("Dir").SetValue(config.Logging.Dir)
	section.Key("EventLog").SetValue(strconv.FormatBool(config.Logging.EventLog))

	section = file.Section("Metrics")
	section.Key("Enabled").SetValue(strconv.FormatBool(config.Metrics.Enabled))
	section.Key("Address").SetValue(config.Metrics.Address)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := file.SaveTo(path); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
