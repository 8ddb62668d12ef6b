// Package wire implements the byte-level framing of the PostgreSQL v3
// frontend/backend protocol: message type tags, the length-prefixed
// envelope, and builders/parsers for the messages the extended query
// protocol exchanges.
//
// Reference: https://www.postgresql.org/docs/current/protocol-message-formats.html
package wire

// Frontend (client -> server) message types.
const (
	// Startup-class messages have no type byte; they are identified by
	// their length and, for SSL/GSSENC/Cancel, by a fixed leading code.
	MsgStartup byte = 0

	MsgQuery byte = 'Q'

	MsgParse    byte = 'P'
	MsgBind     byte = 'B'
	MsgDescribe byte = 'D'
	MsgExecute  byte = 'E'
	MsgClose    byte = 'C'
	MsgSync     byte = 'S'
	MsgFlush    byte = 'H'

	MsgTerminate byte = 'X'
	MsgPassword  byte = 'p'
)

// Backend (server -> client) message types.
const (
	MsgAuthentication       byte = 'R'
	MsgBackendKeyData       byte = 'K'
	MsgBindComplete         byte = '2'
	MsgCloseComplete        byte = '3'
	MsgCommandComplete      byte = 'C'
	MsgDataRow              byte = 'D'
	MsgEmptyQueryResponse   byte = 'I'
	MsgErrorResponse        byte = 'E'
	MsgNoData               byte = 'n'
	MsgNoticeResponse       byte = 'N'
	MsgNotificationResponse byte = 'A'
	MsgParameterDescription byte = 't'
	MsgParameterStatus      byte = 'S'
	MsgParseComplete        byte = '1'
	MsgPortalSuspended      byte = 's'
	MsgReadyForQuery        byte = 'Z'
	MsgRowDescription       byte = 'T'
)

// Authentication request subtypes (payload of an 'R' message).
const (
	AuthOK           = 0
	AuthCleartext    = 3
	AuthMD5Password  = 5
	AuthSASL         = 10
	AuthSASLContinue = 11
	AuthSASLFinal    = 12
)

// Transaction status indicators carried by ReadyForQuery.
const (
	TxStatusIdle   byte = 'I'
	TxStatusInTx   byte = 'T'
	TxStatusFailed byte = 'E'
)

// Protocol-level constants.
const (
	ProtocolVersionNumber = 196608 // 3.0 = (3 << 16) | 0
	SSLRequestCode        = 80877103
	CancelRequestCode     = 80877102
)

// Describe/Close target kinds, used as the first payload byte.
const (
	TargetStatement byte = 'S'
	TargetPortal    byte = 'P'
)

// Parameter/result format codes.
const (
	FormatText   int16 = 0
	FormatBinary int16 = 1
)

// Error/notice field type tags, per ErrorResponse/NoticeResponse.
const (
	FieldSeverity         byte = 'S'
	FieldSeverityNonLocal byte = 'V'
	FieldCode             byte = 'C'
	FieldMessage          byte = 'M'
	FieldDetail           byte = 'D'
	FieldHint             byte = 'H'
	FieldPosition         byte = 'P'
	FieldInternalPosition byte = 'p'
	FieldInternalQuery    byte = 'q'
	FieldWhere            byte = 'W'
	FieldSchema           byte = 's'
	FieldTable            byte = 't'
	FieldColumn           byte = 'c'
	FieldDataType         byte = 'd'
	FieldConstraint       byte = 'n'
	FieldFile             byte = 'F'
	FieldLine             byte = 'L'
	FieldRoutine          byte = 'R'
)

// A curated subset of SQLSTATEs the engine gives special treatment to.
const (
	SQLStateQueryCanceled           = "57014"
	SQLStateInvalidSQLStatementName = "26000"
	SQLStateFeatureNotSupported     = "0A000"
)
