package port

// DenylistMetrics receives denylist activity counters.
type DenylistMetrics interface {
	TokenRevoked()
	RevocationSkipped()
	RevokedTokenRejected()
	StoreError(op string)
}
