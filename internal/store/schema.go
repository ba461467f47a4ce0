package store

import (
	"time"

	"github.com/google/uuid"
)

// ConnKey identifies a _Connection row by its ordered pair of session
// uuids (§3, invariant ii).
type ConnKey struct {
	A uuid.UUID
	B uuid.UUID
}

// ReadoutDataKey identifies a _ReadoutData row: one OBIS value captured
// within one _Readout.
type ReadoutDataKey struct {
	Readout uuid.UUID
	Code    [6]byte
}

// DataCollectorKey identifies one collector profile bound to a meter.
type DataCollectorKey struct {
	ServerID   string
	CollectorID string
}

// PushOpKey identifies one scheduled push operation bound to a meter.
type PushOpKey struct {
	ServerID string
	PushID   string
}

// Device is the TDevice row: an account-level device record.
type Device struct {
	Name       string
	Password   string
	Number     string
	Descr      string
	Model      string
	Firmware   string
	Enabled    bool
	Created    time.Time
	QueryMask  uint32
}

// Gateway is the TGateway row, keyed by the same uuid as its Device
// (§3, invariant i: exists only if the matching Device exists).
type Gateway struct {
	ServerID     string
	Manufacturer string
	Made         time.Time
	FactoryNr    string
	MACService   string
	MACData      string
	DefaultPwd   string
	RootPwd      string
	MBusID       string
	User         string
	Pwd          string
}

// Meter is the TMeter row: one physical field meter.
type Meter struct {
	Ident        string
	Manufacturer string
	FactoryNr    string
	Age          time.Duration
	VParam       uint8
	VFirmware    uint8
	Item         string
	Class        string
	Source       string
}

// Session is a _Session row: one live IP-T or cluster-bus connection
// on the node that owns it.
type Session struct {
	LocalPeer  string
	RemotePeer string
	PeerTag    string
	DeviceTag  string
	Name       string
	Source     string
	LoginTime  time.Time
	RTag       string
	Layer      string
	Rx, Sx, Px uint64
}

// Target is a _Target row: a registered push target/channel.
type Target struct {
	OwnerTag string
	Peer     string
	Name     string
	Device   string
	Account  string
	PSize    uint16
	WSize    uint8
	RegTime  time.Time
	Px       uint64
}

// Connection is a _Connection row: one transparent end-to-end
// connection between two sessions.
type Connection struct {
	AName      string
	BName      string
	Local      bool
	ALayer     string
	BLayer     string
	Throughput uint64
	Start      time.Time
}

// ClusterNode is a _Cluster row: one live cluster-bus member.
type ClusterNode struct {
	Class     string
	LoginTime time.Time
	Version   string
	Clients   int
	Ping      time.Duration
	EP        string
	PID       int
	Self      bool
}

// ConfigValue is a _Config row: a stringly-typed configuration value
// restored via Kind (§3 "value (stringly typed, restored via type
// tag)").
type ConfigValue struct {
	Kind  string
	Value string
}

// SysMsg is a _SysMsg row: one operator-visible system message.
type SysMsg struct {
	TS       time.Time
	Severity int
	Msg      string
}

// ReadoutStatus enumerates _Readout.status.
type ReadoutStatus int

const (
	ReadoutPending ReadoutStatus = iota
	ReadoutOK
	ReadoutFailed
)

// Readout is a _Readout row: one meter readout event header.
type Readout struct {
	ServerID string
	TS       time.Time
	Status   ReadoutStatus
	Gen      uint64
}

// ReadoutData is a _ReadoutData row: one OBIS value captured within a
// readout.
type ReadoutData struct {
	Unit   uint8
	Scaler int8
	Value  int64
	Raw    []byte
}

// DataCollector is a _DataCollector row: a profile-routing rule bound
// to a meter (§4.5).
type DataCollector struct {
	Profile string
	Active  bool
	Mirrors []string // names of bound _DataMirror rows
}

// PushOp is a _PushOps row: a scheduled push task description (§4.5
// "Push scheduling").
type PushOp struct {
	Profile  string
	Interval time.Duration
	Delay    time.Duration
	Target   string
	// TaskHandle names the running scheduler job, empty if not started.
	TaskHandle string
}

// DataMirror is a _DataMirror row: one OBIS code captured by a
// collector profile.
type DataMirror struct {
	CollectorID string
	Code        [6]byte
	Label       string
}

// DeviceMBUS is a _DeviceMBUS row: per-meter wireless M-Bus
// configuration discovered or provisioned (§4.5 "Meter inventory").
type DeviceMBUS struct {
	AESKey        [16]byte
	Class         string
	Status        string
	Enabled       bool
	AutoActivated bool
	FirstSeen     time.Time
	LastSeen      time.Time
}

// Store bundles every replicated table the master and gateway share.
// Every role may hold read-only replicas of tables it does not own.
type Store struct {
	Devices  *Table[uuid.UUID, Device]
	Gateways *Table[uuid.UUID, Gateway]
	Meters   *Table[uuid.UUID, Meter]

	Sessions    *Table[uuid.UUID, Session]
	Targets     *Table[uint32, Target]
	Connections *Table[ConnKey, Connection]

	Cluster *Table[uuid.UUID, ClusterNode]
	Config  *Table[string, ConfigValue]
	SysMsgs *Table[uint64, SysMsg]

	Readouts     *Table[uuid.UUID, Readout]
	ReadoutData  *Table[ReadoutDataKey, ReadoutData]
	Collectors   *Table[DataCollectorKey, DataCollector]
	PushOps      *Table[PushOpKey, PushOp]
	Mirrors      *Table[string, DataMirror]
	DeviceMBUS   *Table[string, DeviceMBUS]
}

// NewStore creates an empty Store with every table registered and its live
// row count published via expvar.
func NewStore() *Store {
	return &Store{
		Devices:  New[uuid.UUID, Device]("device"),
		Gateways: New[uuid.UUID, Gateway]("gateway"),
		Meters:   New[uuid.UUID, Meter]("meter"),

		Sessions:    New[uuid.UUID, Session]("session"),
		Targets:     New[uint32, Target]("target"),
		Connections: New[ConnKey, Connection]("connection"),

		Cluster: New[uuid.UUID, ClusterNode]("cluster"),
		Config:  New[string, ConfigValue]("config"),
		SysMsgs: New[uint64, SysMsg]("sysmsg"),

		Readouts:    New[uuid.UUID, Readout]("readout"),
		ReadoutData: New[ReadoutDataKey, ReadoutData]("readout_data"),
		Collectors:  New[DataCollectorKey, DataCollector]("data_collector"),
		PushOps:     New[PushOpKey, PushOp]("push_ops"),
		Mirrors:     New[string, DataMirror]("data_mirror"),
		DeviceMBUS:  New[string, DeviceMBUS]("device_mbus"),
	}
}
