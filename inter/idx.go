package inter

// Block is a block height.
type Block uint64

// Epoch is an index into the reward epoch schedule.
type Epoch int

// Day is a 1-based day counter within a reward epoch.
type Day int
