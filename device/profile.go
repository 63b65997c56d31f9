package device

// Profile describes the GATT endpoint a session reads from and how its value is decoded.
type Profile interface {
  Name() string
  ServiceUUID() string
  // Some protocols reuse the service UUID for their single characteristic.
  CharacteristicUUID() string
  Decode(raw []byte) (ProximityRecord, error)
  String() string
}

type Factory interface {
	FromSpec(spec ProfileSpec) (Profile, error)
}

type FactoryDocs interface {
	Help() string
}
