// Package domain models the subscriptions, alerts and feed samples of the
// Gujarat taluka alert service.
//
// # Areas
//
// Gujarat is split into districts, and each district into talukas. An [Area]
// is the (district, taluka) pair exactly as it appears in the reference
// dataset; both halves are case-sensitive. Fire hotspots that cannot be placed
// near any taluka carry [UnknownArea] and are kept for audit only.
//
// Reference dataset columns (extra columns are ignored):
//
//	District Name, Taluka Name, Taluka Latitude, Taluka Longitude
//
// The dataset is village-level, so a taluka appears on many rows. The first
// row with usable coordinates wins.
//
// # Alerts
//
// An [Alert] targets one Area. Its only mutable part is the one-way
// pending → sent transition, which also records an [Outcome]:
//
//	delivered      at least one subscriber received the message
//	no_recipients  nobody was subscribed (or every recipient was pruned)
//	abandoned      every dispatch failed on MaxAttempts consecutive sweeps
//
// Alert IDs are ULIDs, so lexical order is creation order.
//
// # Weather samples
//
// Open-Meteo reports current temperature, relative humidity, 10 m wind speed
// and a WMO weather code, plus the daily max/min for the local day
// (Asia/Kolkata). Weather codes are translated by [WeatherDescription].
//
// # Fire hotspots
//
// NASA FIRMS MODIS rows carry latitude, longitude, confidence (0–100),
// acq_date (YYYY-MM-DD), acq_time (HHMM, UTC) and a detection type:
//
//	0 Vegetation | 1 Active Fire | 2, 3 Other
//
// Fire severity follows confidence: high ≥ 90, medium ≥ 70, otherwise low.
package domain
