// SPDX-License-Identifier: Unlicense OR MIT

package loader

import (
	"eliasnaur.com/efiboot/uefi"
)

// findSystemTables records the ACPI root tables and the runtime
// services table. A 2.0 RSDP wins over a 1.0 one; malformed RSDPs are
// skipped.
func (l *Loader) findSystemTables() error {
	tables, err := uefi.ConfigurationTables()
	if err != nil {
		return err
	}
	si := &l.args.SystemInfo
	for _, t := range tables {
		if t.Kind != uefi.TableACPI1 && t.Kind != uefi.TableACPI2 {
			continue
		}
		r, err := uefi.ReadRSDP(t.Addr)
		if err != nil {
			l.log.Warnf("ignoring %v RSDP at %#x: %v", t.Kind, t.Addr, err)
			continue
		}
		switch {
		case t.Kind == uefi.TableACPI2:
			si.RSDT = uint64(r.RSDTAddress)
			si.XSDT = r.XSDTAddress
		case si.RSDT == 0:
			si.RSDT = uint64(r.RSDTAddress)
		}
	}
	st, err := uefi.Table()
	if err != nil {
		return err
	}
	si.UEFIRuntime = st.RuntimeServices()
	l.log.Infof("ACPI: RSDT %#x, XSDT %#x", si.RSDT, si.XSDT)
	return nil
}
