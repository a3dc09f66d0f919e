// Package identity holds the long-lived secret of a beacon (MasterKey) and
// the daily pseudo-identity derived from it (DeviceID).
package identity
