package manifest

// PackageDescriptor is the file the install step requires at the sandbox root.
const PackageDescriptor = "package.json"

// MinimalPackageJSON is written when a mounted project has no package descriptor.
const MinimalPackageJSON = `{
  "name": "nextjs-app",
  "version": "0.1.0",
  "private": true,
  "scripts": {
    "dev": "next dev",
    "build": "next build",
    "start": "next start"
  },
  "dependencies": {
    "next": "13.4.19",
    "react": "18.2.0",
    "react-dom": "18.2.0"
  }
}
`

const scaffoldNextConfig = `/** @type {import('next').NextConfig} */
const nextConfig = {
  reactStrictMode: true,
}

module.exports = nextConfig
`

const scaffoldPage = `export default function Home() {
  return (
    <main>
      <h1>Hello, Next.js!</h1>
    </main>
  )
}
`

const scaffoldLayout = `export const metadata = {
  title: 'Next.js App',
  description: 'Created in the preview sandbox',
}

export default function RootLayout({ children }) {
  return (
    <html lang="en">
      <body>{children}</body>
    </html>
  )
}
`

// Scaffold returns the minimal runnable project mounted in place of a tree
// that failed to convert or contained no mountable files.
func Scaffold() Manifest {
	return Manifest{
		PackageDescriptor: File{Contents: []byte(MinimalPackageJSON)},
		"next.config.js":  File{Contents: []byte(scaffoldNextConfig)},
		"app":             Directory{},
		"app/page.tsx":    File{Contents: []byte(scaffoldPage)},
		"app/layout.tsx":  File{Contents: []byte(scaffoldLayout)},
	}
}
