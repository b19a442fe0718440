package logger

// Per-subsystem helpers. Each prefixes the message with the subsystem tag so
// log lines can be grepped by area without structured fields.

func VisionDebug(format string, v ...interface{}) {
	if debugEnabled {
		base.Debugf("[vision] "+format, v...)
	}
}

func VisionInfo(format string, v ...interface{}) { base.Infof("[vision] "+format, v...) }

func VisionWarn(format string, v ...interface{}) { base.Warnf("[vision] "+format, v...) }

func VisionError(format string, v ...interface{}) { base.Errorf("[vision] "+format, v...) }

func SearchDebug(format string, v ...interface{}) {
	if debugEnabled {
		base.Debugf("[search] "+format, v...)
	}
}

func SearchInfo(format string, v ...interface{}) { base.Infof("[search] "+format, v...) }

func SearchWarn(format string, v ...interface{}) { base.Warnf("[search] "+format, v...) }

func DatasetDebug(format string, v ...interface{}) {
	if debugEnabled {
		base.Debugf("[dataset] "+format, v...)
	}
}

func DatasetInfo(format string, v ...interface{}) { base.Infof("[dataset] "+format, v...) }

func DatasetWarn(format string, v ...interface{}) { base.Warnf("[dataset] "+format, v...) }

func DatasetError(format string, v ...interface{}) { base.Errorf("[dataset] "+format, v...) }

func TelegramDebug(format string, v ...interface{}) {
	if debugEnabled {
		base.Debugf("[telegram] "+format, v...)
	}
}

func TelegramInfo(format string, v ...interface{}) { base.Infof("[telegram] "+format, v...) }

func TelegramWarn(format string, v ...interface{}) { base.Warnf("[telegram] "+format, v...) }

func TelegramError(format string, v ...interface{}) { base.Errorf("[telegram] "+format, v...) }

func ToolDebug(format string, v ...interface{}) {
	if debugEnabled {
		base.Debugf("[tool] "+format, v...)
	}
}

func ToolInfo(format string, v ...interface{}) { base.Infof("[tool] "+format, v...) }

func ToolWarn(format string, v ...interface{}) { base.Warnf("[tool] "+format, v...) }
