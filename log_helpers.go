package modrun

import "go.uber.org/zap"

func zapKey(m *Module) []zap.Field {
	return []zap.Field{
		zap.String("module_key", m.key),
		zap.String("module_type", m.baseTypeID),
		zap.String("module_uuid", m.id.String()),
	}
}

func zapErr(err error) zap.Field {
	return zap.Error(err)
}
