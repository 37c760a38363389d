package types

// Version is the catapult client version.
const Version = "0.4.0"
