package storekit

// Operation identifies an accessor call. It is carried on errors and in logs.
type Operation uint8

const (
	OpUnknown Operation = iota
	OpInfo
	OpStat
	OpList
	OpListerNext
	OpRead
	OpWrite
	OpDelete
	OpCreateDir
	OpCopy
	OpMove
	OpPresign
)

var operationNames = [...]string{
	OpUnknown:    "unknown",
	OpInfo:       "info",
	OpStat:       "stat",
	OpList:       "list",
	OpListerNext: "lister_next",
	OpRead:       "read",
	OpWrite:      "write",
	OpDelete:     "delete",
	OpCreateDir:  "create_dir",
	OpCopy:       "copy",
	OpMove:       "move",
	OpPresign:    "presign",
}

// String returns the lowercase name used in error messages.
func (o Operation) String() string {
	if int(o) < len(operationNames) {
		return operationNames[o]
	}
	return operationNames[OpUnknown]
}
