// Package catalog keeps the plans and add-ons of a billing site in sync with a
// YAML description.
//
// A catalog file lists plans with their prices per currency and, nested under
// each plan, its add-ons:
//
//	plans:
//	  - code: basic
//	    name: Basic
//	    price: {USD: 1999, EUR: 1799}
//	    trial: {length: 14, unit: days}
//	    add_ons:
//	      - code: seats
//	        name: Extra seats
//	        price: {USD: 500}
//
// Load or Parse the file, then call Sync with a billing client:
//
//	cat, err := catalog.Load("catalog.yaml")
//	if err != nil {
//		return err
//	}
//	report, err := catalog.Sync(ctx, client, cat, catalog.WithLogger(log))
//
// Sync creates what is missing and updates what differs. Nothing is deleted:
// plans or add-ons absent from the file are left alone. With WithDryRun the
// report describes the changes without making them.
package catalog
