/*Package log implements the logging for the bolt driver

There are 3 logging levels - trace, info and error.  Setting trace would also set info and error logs.
You can use the SetLevel("trace") to set trace logging, for example.
*/
package log
